package tree

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/contents/memstore"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

func newTestTree(t *testing.T, setup func(mem *memstore.Store), opts Options) (*Controller, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	if setup != nil {
		setup(mem)
	}
	c := NewController(mem, contents.NewManager(mem), nil, opts)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c, mem
}

// docsTree is root {docs/ {a.txt}, readme.txt (500 B)}.
func docsTree(mem *memstore.Store) {
	mem.WriteFile("docs/a.txt", []byte("a"))
	mem.WriteFile("readme.txt", make([]byte, 500))
}

func rowPaths(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Path)
	}
	return out
}

func visiblePaths(c *Controller) []string {
	return rowPaths(c.VisibleRows())
}

func checkNoDuplicates(t *testing.T, rows []Row) {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range rows {
		if seen[r.Key] {
			t.Errorf("duplicate row %q", r.Path)
		}
		seen[r.Key] = true
	}
}

func TestSortEntries(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  []string
	}{
		{"case sensitive", []string{"b.txt", "A", "a.txt"}, []string{"A", "a.txt", "b.txt"}},
		{"directories not grouped", []string{"z.txt", "dir", "B"}, []string{"B", "dir", "z.txt"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []models.Entry
			for _, n := range tt.names {
				entries = append(entries, models.Entry{Name: n})
			}
			got := []string{}
			for _, e := range SortEntries(entries) {
				got = append(got, e.Name)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SortEntries = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortEntriesIsStable(t *testing.T) {
	entries := []models.Entry{
		{Name: "same", Path: "first"},
		{Name: "a"},
		{Name: "same", Path: "second"},
	}
	sorted := SortEntries(entries)
	if sorted[1].Path != "first" || sorted[2].Path != "second" {
		t.Errorf("ties reordered: %+v", sorted)
	}
}

func TestLoadSortsRows(t *testing.T) {
	c, _ := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("b.txt", nil)
		mem.MkdirAll("A")
		mem.WriteFile("a.txt", nil)
	}, Options{})

	want := []string{"A", "a.txt", "b.txt"}
	if got := rowPaths(c.Rows()); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
	for _, r := range c.Rows() {
		if r.Level != 1 || r.Hidden {
			t.Errorf("row %q: level %d hidden %v, want level 1 visible", r.Path, r.Level, r.Hidden)
		}
		if r.Key != pathutil.EncodeKey(r.Path) {
			t.Errorf("row %q key = %q", r.Path, r.Key)
		}
	}

	st, ok := c.State().Get("A")
	if !ok || st.IsOpen || st.Loaded {
		t.Errorf("state(A) = %+v, %v; want closed and unloaded", st, ok)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	before := c.Rows()

	root, err := mem.Get(ctx, "", contents.GetOptions{Content: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Reconcile("", root.Children, 1); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
	}

	after := c.Rows()
	checkNoDuplicates(t, after)
	if !reflect.DeepEqual(rowPaths(after), rowPaths(before)) {
		t.Errorf("rows = %v, want %v", rowPaths(after), rowPaths(before))
	}
}

func TestReconcileRemovesMissingChildren(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := mem.Delete(ctx, "docs"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	root, _ := mem.Get(ctx, "", contents.GetOptions{Content: true})
	if err := c.Reconcile("", root.Children, 1); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := []string{"readme.txt"}
	if got := rowPaths(c.Rows()); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestReconcileUnknownParent(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})
	if err := c.Reconcile("nope", nil, 2); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("err = %v, want ErrRowNotFound", err)
	}
}

func TestEndToEnd(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()

	want := []string{"docs", "readme.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Fatalf("after load rows = %v, want %v", got, want)
	}
	if r, _ := c.Row("readme.txt"); r.Entry.SizeOrZero() != 500 {
		t.Errorf("readme.txt size = %d, want 500", r.Entry.SizeOrZero())
	}

	if err := c.Toggle(ctx, "docs", 2); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	want = []string{"docs", "docs/a.txt", "readme.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Fatalf("after toggle rows = %v, want %v", got, want)
	}
	if r, _ := c.Row("docs/a.txt"); r.Level != 2 {
		t.Errorf("docs/a.txt level = %d, want 2", r.Level)
	}

	beforeRefresh := mem.GetCount("docs")
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	rows := c.Rows()
	checkNoDuplicates(t, rows)
	if got := rowPaths(rows); !reflect.DeepEqual(got, want) {
		t.Errorf("after refresh rows = %v, want %v", got, want)
	}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("after refresh visible = %v, want %v", got, want)
	}
	if n := mem.GetCount("docs") - beforeRefresh; n != 2 {
		t.Errorf("refresh fetched docs %d times, want 2 (metadata and restore)", n)
	}
}

func TestToggleCollapseKeepsGrandchildrenHidden(t *testing.T) {
	c, _ := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("a/b/c.txt", nil)
		mem.WriteFile("a/d.txt", nil)
	}, Options{})
	ctx := context.Background()

	for _, p := range []string{"a", "a/b", "a/b", "a", "a"} {
		if err := c.Toggle(ctx, p, 0); err != nil {
			t.Fatalf("Toggle(%s): %v", p, err)
		}
	}

	want := []string{"a", "a/b", "a/d.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
	if r, ok := c.Row("a/b/c.txt"); !ok || !r.Hidden {
		t.Errorf("a/b/c.txt = %+v, %v; want rendered and hidden", r, ok)
	}

	// Opening a/b again reveals its child.
	if err := c.Toggle(ctx, "a/b", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if r, _ := c.Row("a/b/c.txt"); r.Hidden {
		t.Error("a/b/c.txt should be visible once a/b is open")
	}
}

func TestToggleEmptyDirectoryDoesNotRefetch(t *testing.T) {
	c, mem := newTestTree(t, func(mem *memstore.Store) {
		mem.MkdirAll("empty")
	}, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Toggle(ctx, "empty", 0); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
	}

	if n := mem.GetCount("empty"); n != 1 {
		t.Errorf("empty fetched %d times, want 1", n)
	}
	st, _ := c.State().Get("empty")
	if !st.Loaded || !st.IsOpen {
		t.Errorf("state = %+v, want loaded and open after three toggles", st)
	}
}

func TestToggleUnknownRow(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})
	if err := c.Toggle(context.Background(), "missing", 0); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("err = %v, want ErrRowNotFound", err)
	}
}

func TestToggleInsideClosedAncestorStaysHidden(t *testing.T) {
	c, _ := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("a/b/c.txt", nil)
	}, Options{})
	ctx := context.Background()

	if err := c.Toggle(ctx, "a", 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Toggle(ctx, "a", 0); err != nil {
		t.Fatal(err)
	}
	// a is collapsed; loading a/b must not reveal anything.
	if err := c.Toggle(ctx, "a/b", 0); err != nil {
		t.Fatal(err)
	}
	want := []string{"a"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
}

func TestRefreshRestoresNestedOpenDirectories(t *testing.T) {
	c, _ := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("a/b/c.txt", nil)
		mem.WriteFile("z.txt", nil)
	}, Options{RestoreConcurrency: 2})
	ctx := context.Background()

	for _, p := range []string{"a", "a/b"} {
		if err := c.Toggle(ctx, p, 0); err != nil {
			t.Fatalf("Toggle(%s): %v", p, err)
		}
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rows := c.Rows()
	want := []string{"a", "a/b", "a/b/c.txt", "z.txt"}
	if got := rowPaths(rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	wantLevels := []int{1, 2, 3, 1}
	for i, r := range rows {
		if r.Level != wantLevels[i] || r.Hidden {
			t.Errorf("row %q: level %d hidden %v, want level %d visible", r.Path, r.Level, r.Hidden, wantLevels[i])
		}
	}
}

func TestRefreshSkipsOpenDirectoryUnderClosedParent(t *testing.T) {
	c, mem := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("a/b/c.txt", nil)
	}, Options{})
	ctx := context.Background()

	for _, p := range []string{"a", "a/b", "a"} {
		if err := c.Toggle(ctx, p, 0); err != nil {
			t.Fatalf("Toggle(%s): %v", p, err)
		}
	}
	before := mem.GetCount("a/b")
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	want := []string{"a"}
	if got := rowPaths(c.Rows()); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
	// Only the metadata fetch; a/b is not restored while a is closed.
	if n := mem.GetCount("a/b") - before; n != 1 {
		t.Errorf("a/b fetched %d times, want 1", n)
	}
	if st, _ := c.State().Get("a/b"); !st.IsOpen {
		t.Error("a/b should stay marked open")
	}
}

func TestRefreshEvictsFailedPath(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	mem.OnGet = func(_ context.Context, path string) error {
		if path == "docs" {
			return &contents.StatusError{Op: "get", Path: path, Code: 403}
		}
		return nil
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	st, ok := c.State().Get("docs")
	if !ok || st.IsOpen {
		t.Errorf("state(docs) = %+v, %v; want a fresh closed entry", st, ok)
	}
	want := []string{"docs", "readme.txt"}
	if got := rowPaths(c.Rows()); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestRestoreFailureIsIsolated(t *testing.T) {
	c, mem := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("x/1.txt", nil)
		mem.WriteFile("y/1.txt", nil)
	}, Options{})
	ctx := context.Background()
	for _, p := range []string{"x", "y"} {
		if err := c.Toggle(ctx, p, 0); err != nil {
			t.Fatalf("Toggle(%s): %v", p, err)
		}
	}

	// Let the metadata fetch of x through, fail the restore listing.
	var mu sync.Mutex
	calls := 0
	mem.OnGet = func(_ context.Context, path string) error {
		if path != "x" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := []string{"x", "y", "y/1.txt"}
	if got := rowPaths(c.Rows()); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()

	var once sync.Once
	refreshing := false
	mem.OnGet = func(ctx context.Context, path string) error {
		if path != "docs" || refreshing {
			return nil
		}
		// A refresh lands while the first docs listing is in flight.
		once.Do(func() {
			refreshing = true
			if err := c.Refresh(ctx); err != nil {
				t.Errorf("Refresh: %v", err)
			}
			refreshing = false
		})
		return nil
	}

	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	rows := c.Rows()
	checkNoDuplicates(t, rows)
	want := []string{"docs", "docs/a.txt", "readme.txt"}
	if got := rowPaths(rows); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestRecorderReplaysToRows(t *testing.T) {
	rec := &Recorder{}
	c, mem := newTestTree(t, func(mem *memstore.Store) {
		mem.WriteFile("a/b/c.txt", nil)
		mem.WriteFile("a/d.txt", nil)
		mem.WriteFile("e.txt", nil)
	}, Options{Renderer: rec})
	ctx := context.Background()

	for _, p := range []string{"a", "a/b", "a"} {
		if err := c.Toggle(ctx, p, 0); err != nil {
			t.Fatalf("Toggle(%s): %v", p, err)
		}
	}
	mem.WriteFile("a/0.txt", nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var keys []string
	hidden := map[string]bool{}
	for _, op := range rec.Ops() {
		switch op.Kind {
		case OpClear:
			keys = nil
		case OpRemove:
			for i, k := range keys {
				if k == op.Key {
					keys = append(keys[:i], keys[i+1:]...)
					break
				}
			}
		case OpInsert:
			at := 0
			if op.After != "" {
				for i, k := range keys {
					if k == op.After {
						at = i + 1
					}
				}
			}
			keys = append(keys[:at], append([]string{op.Key}, keys[at:]...)...)
			hidden[op.Key] = op.Row.Hidden
		case OpShow:
			hidden[op.Key] = false
		case OpHide:
			hidden[op.Key] = true
		}
	}

	rows := c.Rows()
	var want []string
	for _, r := range rows {
		want = append(want, r.Key)
		if hidden[r.Key] != r.Hidden {
			t.Errorf("replayed hidden(%s) = %v, want %v", r.Path, hidden[r.Key], r.Hidden)
		}
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("replayed keys = %v, want %v", keys, want)
	}
}

func TestRenameRewritesStateAndSelection(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	c.Select("docs/a.txt")

	newPath, err := c.Rename(ctx, "docs", "notes")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if newPath != "notes" {
		t.Errorf("newPath = %q, want %q", newPath, "notes")
	}

	want := []string{"notes", "notes/a.txt", "readme.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
	if _, ok := c.State().Get("docs"); ok {
		t.Error("state for docs should be re-keyed")
	}
	if sel, _ := c.Selection(); sel != "notes/a.txt" {
		t.Errorf("selection = %q, want %q", sel, "notes/a.txt")
	}
}

func TestRenameValidation(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		newName string
		wantErr error
	}{
		{"slash", "a/b", ErrInvalidName},
		{"empty", "", ErrInvalidName},
		{"same name", "docs", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Rename(ctx, "docs", tt.newName)
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got != "docs" {
				t.Errorf("path = %q, want original %q", got, "docs")
			}
		})
	}
	if !mem.Exists("docs") {
		t.Error("docs should be untouched")
	}
}

func TestMove(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	newPath, err := c.Move(ctx, "readme.txt", "docs")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if newPath != "docs/readme.txt" || !mem.Exists("docs/readme.txt") {
		t.Errorf("newPath = %q, want docs/readme.txt", newPath)
	}
	want := []string{"docs", "docs/a.txt", "docs/readme.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
}

func TestMoveDeclined(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{Confirmer: contents.AutoConfirmer{Answer: false}})

	newPath, err := c.Move(context.Background(), "readme.txt", "docs")
	if err != nil || newPath != "" {
		t.Errorf("Move = %q, %v; want silent no-op", newPath, err)
	}
	if !mem.Exists("readme.txt") {
		t.Error("readme.txt should not move")
	}
}

func TestDeleteClearsSelectionAndState(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	c.Select("docs/a.txt")
	c.SetContext("docs")

	deleted, err := c.Delete(ctx, "docs")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if mem.Exists("docs") {
		t.Error("docs should be gone")
	}
	if _, ok := c.State().Get("docs"); ok {
		t.Error("state for docs should be dropped")
	}
	if _, ok := c.Selection(); ok {
		t.Error("selection should be cleared")
	}
	if _, ok := c.Context(); ok {
		t.Error("context should be cleared")
	}
	want := []string{"readme.txt"}
	if got := rowPaths(c.Rows()); !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestDeleteDeclined(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{Confirmer: contents.AutoConfirmer{Answer: false}})
	deleted, err := c.Delete(context.Background(), "docs")
	if err != nil || deleted {
		t.Errorf("Delete = %v, %v; want declined", deleted, err)
	}
	if !mem.Exists("docs") {
		t.Error("docs should remain")
	}
}

func TestCreateFileExpandsDirectory(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})

	entry, err := c.CreateFile(context.Background(), "docs", "new.txt")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if entry.Path != "docs/new.txt" {
		t.Errorf("path = %q, want docs/new.txt", entry.Path)
	}
	want := []string{"docs", "docs/a.txt", "docs/new.txt", "readme.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}

	if _, err := c.CreateFile(context.Background(), "docs", "bad:name"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("err = %v, want ErrInvalidName", err)
	}
}

func TestCreateFolderUsesSelection(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})
	ctx := context.Background()
	if err := c.Toggle(ctx, "docs", 0); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	c.Select("docs/a.txt")

	entry, err := c.CreateFolder(ctx, "")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if entry.Path != "docs/Untitled Folder" {
		t.Errorf("path = %q, want %q", entry.Path, "docs/Untitled Folder")
	}
	if _, ok := c.Row("docs/Untitled Folder"); !ok {
		t.Error("new folder should be rendered")
	}
}

func TestCopyPathPrefersContext(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})
	if _, ok := c.CopyPath(); ok {
		t.Error("CopyPath with nothing selected should report false")
	}
	c.Select("readme.txt")
	if p, _ := c.CopyPath(); p != "readme.txt" {
		t.Errorf("CopyPath = %q, want readme.txt", p)
	}
	c.SetContext("docs")
	if p, _ := c.CopyPath(); p != "docs" {
		t.Errorf("CopyPath = %q, want docs", p)
	}
}

func TestNavigateExpandsAncestors(t *testing.T) {
	mem := memstore.New()
	mem.WriteFile("a/b/c.txt", nil)
	mem.WriteFile("a/x.txt", nil)
	c := NewController(mem, contents.NewManager(mem), nil, Options{})

	if err := c.Navigate(context.Background(), "a/b/c.txt"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	want := []string{"a", "a/b", "a/b/c.txt", "a/x.txt"}
	if got := visiblePaths(c); !reflect.DeepEqual(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
	if sel, _ := c.Selection(); sel != "a/b/c.txt" {
		t.Errorf("selection = %q, want a/b/c.txt", sel)
	}

	if err := c.Navigate(context.Background(), "a/missing"); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("err = %v, want ErrRowNotFound", err)
	}
}

func TestNavigateOpensDirectoryTarget(t *testing.T) {
	c, _ := newTestTree(t, docsTree, Options{})
	if err := c.Navigate(context.Background(), "docs"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if r, ok := c.Row("docs/a.txt"); !ok || r.Hidden {
		t.Errorf("docs/a.txt = %+v, %v; want visible", r, ok)
	}
}

func TestReadOnlyController(t *testing.T) {
	mem := memstore.New()
	c := NewController(mem, nil, nil, Options{})
	if _, err := c.Delete(context.Background(), "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
}

func TestPollerRefreshes(t *testing.T) {
	c, mem := newTestTree(t, docsTree, Options{})
	before := mem.GetCount("")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := NewPoller(c, 20*time.Millisecond).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
	if n := mem.GetCount("") - before; n < 2 {
		t.Errorf("root fetched %d times while polling, want at least 2", n)
	}
}

func TestPollerRejectsZeroInterval(t *testing.T) {
	c, _ := newTestTree(t, nil, Options{})
	err := NewPoller(c, 0).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "positive") {
		t.Errorf("err = %v, want interval error", err)
	}
}
