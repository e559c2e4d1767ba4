package render

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/contents/memstore"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/tree"
)

func size(n int64) *int64 { return &n }

func TestFileSize(t *testing.T) {
	tests := []struct {
		size *int64
		want string
	}{
		{nil, ""},
		{size(0), "0 B"},
		{size(1023), "1023 B"},
		{size(1024), "1.0 KB"},
		{size(1536), "1.5 KB"},
		{size(1024 * 1024), "1024.0 KB"},
		{size(1024*1024 + 1), "1.0 MB"},
		{size(5 * 1024 * 1024 * 1024), "5.0 GB"},
		{size(3 * 1024 * 1024 * 1024 * 1024), "3.0 TB"},
		{size(2048 * 1024 * 1024 * 1024 * 1024), "2048.0 TB"},
	}
	for _, tt := range tests {
		if got := FileSize(tt.size); got != tt.want {
			t.Errorf("FileSize(%v) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestModified(t *testing.T) {
	if got := Modified(time.Time{}, false); got != "" {
		t.Errorf("Modified(zero) = %q, want empty", got)
	}
	ts := time.Date(2024, 3, 5, 14, 7, 0, 0, time.Local)
	if got := Modified(ts, false); got != "2024-03-05 14:07" {
		t.Errorf("Modified = %q, want 2024-03-05 14:07", got)
	}
	if got := Modified(time.Now().Add(-3*time.Minute), true); got != "3 minutes ago" {
		t.Errorf("Modified(relative) = %q, want 3 minutes ago", got)
	}
}

func TestCount(t *testing.T) {
	if got := Count(1, "item"); got != "1 item" {
		t.Errorf("Count(1) = %q", got)
	}
	if got := Count(12345, "item"); got != "12,345 items" {
		t.Errorf("Count(12345) = %q", got)
	}
}

func TestPermission(t *testing.T) {
	mem := memstore.New()
	mem.WriteFile("rw.txt", nil)
	mem.WriteFile("ro.txt", nil)
	mem.WriteFile("locked.txt", nil)
	mem.SetWritable("ro.txt", false)
	mem.SetWritable("locked.txt", false)
	mem.OnGet = func(_ context.Context, path string) error {
		if path == "locked.txt" {
			return &contents.StatusError{Op: "get", Path: path, Code: 403}
		}
		return nil
	}

	ctx := context.Background()
	tests := []struct {
		entry models.Entry
		want  string
	}{
		{models.Entry{Path: "rw.txt", Writable: true}, PermWritable},
		{models.Entry{Path: "ro.txt"}, PermReadable},
		{models.Entry{Path: "locked.txt"}, PermLocked},
		{models.Entry{Path: "missing.txt"}, PermLocked},
	}
	for _, tt := range tests {
		if got := Permission(ctx, mem, tt.entry); got != tt.want {
			t.Errorf("Permission(%s) = %q, want %q", tt.entry.Path, got, tt.want)
		}
	}
}

func newTable(t *testing.T, setup func(mem *memstore.Store), opts TableOptions) (*tree.Controller, *Table, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	setup(mem)
	if opts.Store == nil {
		opts.Store = mem
	}
	table := NewTable(opts)
	c := tree.NewController(mem, contents.NewManager(mem), nil, tree.Options{Renderer: table})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c, table, mem
}

func names(lines []Line) []string {
	var out []string
	for _, l := range lines {
		out = append(out, l.Name)
	}
	return out
}

func TestTableMirrorsController(t *testing.T) {
	c, table, mem := newTable(t, func(mem *memstore.Store) {
		mem.WriteFile("docs/a.txt", []byte("a"))
		mem.WriteFile("docs/sub/b.txt", nil)
		mem.WriteFile("readme.txt", make([]byte, 2048))
	}, TableOptions{})
	ctx := context.Background()

	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := c.Toggle(ctx, "docs/sub", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	mem.WriteFile("docs/0.txt", nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var want, got []string
	for _, r := range c.Rows() {
		want = append(want, r.Path)
	}
	for _, r := range table.Rows() {
		got = append(got, r.Path)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("table rows = %v, want %v", got, want)
	}

	wantLines := []string{"docs/", "  0.txt", "  a.txt", "  sub/", "    b.txt", "readme.txt"}
	if got := names(table.Lines(ctx)); !reflect.DeepEqual(got, wantLines) {
		t.Errorf("lines = %q, want %q", got, wantLines)
	}
}

func TestTableSkipsHiddenRows(t *testing.T) {
	c, table, _ := newTable(t, func(mem *memstore.Store) {
		mem.WriteFile("docs/a.txt", nil)
	}, TableOptions{})
	ctx := context.Background()

	c.Toggle(ctx, "docs", 0)
	c.Toggle(ctx, "docs", 0)

	if got := names(table.Lines(ctx)); !reflect.DeepEqual(got, []string{"docs/"}) {
		t.Errorf("lines = %q, want only docs/", got)
	}

	table.opts.ShowHidden = true
	if got := names(table.Lines(ctx)); len(got) != 2 {
		t.Errorf("lines with hidden = %q, want 2", got)
	}
}

func TestTableWrite(t *testing.T) {
	_, table, _ := newTable(t, func(mem *memstore.Store) {
		mem.WriteFile("big.bin", make([]byte, 1536))
		mem.WriteFile("ro.txt", nil)
		mem.SetWritable("ro.txt", false)
	}, TableOptions{})

	var buf bytes.Buffer
	if err := table.Write(context.Background(), &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"NAME", "big.bin", "1.5 KB", "ro.txt", PermReadable, PermWritable, "2 items"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableCachesPermissionUntilRowChanges(t *testing.T) {
	var probes int
	c, table, mem := newTable(t, func(mem *memstore.Store) {
		mem.WriteFile("ro.txt", nil)
		mem.SetWritable("ro.txt", false)
	}, TableOptions{})
	mem.OnGet = func(_ context.Context, path string) error {
		if path == "ro.txt" {
			probes++
			return errors.New("denied")
		}
		return nil
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		lines := table.Lines(ctx)
		if len(lines) != 1 || lines[0].Permission != PermLocked {
			t.Fatalf("lines = %+v, want one Locked row", lines)
		}
	}
	if probes != 1 {
		t.Errorf("probes = %d, want 1", probes)
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	table.Lines(ctx)
	if probes != 2 {
		t.Errorf("probes after refresh = %d, want 2", probes)
	}
}
