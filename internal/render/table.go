package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/tree"
)

// TableOptions configures a Table.
type TableOptions struct {
	// Store is probed for the permission column. Nil leaves non-writable
	// rows as Readable.
	Store contents.Store
	// RelativeTime prints the modified column as "x ago".
	RelativeTime bool
	// ShowHidden includes rows inside collapsed directories.
	ShowHidden bool
}

// Table is a tree.Renderer that mirrors the controller's rows from the
// render instructions it receives and prints them as a text table.
type Table struct {
	opts TableOptions

	mu    sync.Mutex
	keys  []string
	rows  map[string]tree.Row
	perms map[string]string
}

// NewTable creates an empty table.
func NewTable(opts TableOptions) *Table {
	return &Table{
		opts:  opts,
		rows:  make(map[string]tree.Row),
		perms: make(map[string]string),
	}
}

// Apply implements tree.Renderer.
func (t *Table) Apply(ops []tree.Op) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case tree.OpClear:
			t.keys = nil
			t.rows = make(map[string]tree.Row)
			t.perms = make(map[string]string)
		case tree.OpRemove:
			if i := t.indexOf(op.Key); i >= 0 {
				t.keys = append(t.keys[:i], t.keys[i+1:]...)
			}
			delete(t.rows, op.Key)
		case tree.OpInsert:
			if op.Row == nil {
				continue
			}
			at := 0
			if op.After != "" {
				at = t.indexOf(op.After) + 1
			}
			t.keys = append(t.keys, "")
			copy(t.keys[at+1:], t.keys[at:])
			t.keys[at] = op.Key
			t.rows[op.Key] = *op.Row
			delete(t.perms, op.Key)
		case tree.OpShow, tree.OpHide:
			if row, ok := t.rows[op.Key]; ok {
				row.Hidden = op.Kind == tree.OpHide
				t.rows[op.Key] = row
			}
		}
	}
}

func (t *Table) indexOf(key string) int {
	for i, k := range t.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Rows returns the mirrored rows in display order.
func (t *Table) Rows() []tree.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]tree.Row, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.rows[k])
	}
	return out
}

// Line is one formatted table row.
type Line struct {
	Name       string
	Size       string
	Modified   string
	Permission string
}

// Lines formats the rows that would be printed.
func (t *Table) Lines(ctx context.Context) []Line {
	var lines []Line
	for _, row := range t.Rows() {
		if row.Hidden && !t.opts.ShowHidden {
			continue
		}
		name := row.Name
		if row.IsDir() {
			name += "/"
		}
		indent := row.Level - 1
		if indent < 0 {
			indent = 0
		}
		size := ""
		if !row.IsDir() {
			size = FileSize(row.Entry.Size)
		}
		lines = append(lines, Line{
			Name:       strings.Repeat("  ", indent) + name,
			Size:       size,
			Modified:   Modified(row.Entry.LastModified, t.opts.RelativeTime),
			Permission: t.permission(ctx, row),
		})
	}
	return lines
}

func (t *Table) permission(ctx context.Context, row tree.Row) string {
	if row.Entry.Writable {
		return PermWritable
	}
	if t.opts.Store == nil {
		return PermReadable
	}

	t.mu.Lock()
	perm, ok := t.perms[row.Key]
	t.mu.Unlock()
	if ok {
		return perm
	}

	perm = Permission(ctx, t.opts.Store, row.Entry)
	t.mu.Lock()
	if _, live := t.rows[row.Key]; live {
		t.perms[row.Key] = perm
	}
	t.mu.Unlock()
	return perm
}

// Write prints the table to w.
func (t *Table) Write(ctx context.Context, w io.Writer) error {
	lines := t.Lines(ctx)
	width := len("NAME")
	for _, l := range lines {
		if len(l.Name) > width {
			width = len(l.Name)
		}
	}

	if _, err := fmt.Fprintf(w, "%-*s  %10s  %-16s  %s\n", width, "NAME", "SIZE", "MODIFIED", "PERMISSION"); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-*s  %10s  %-16s  %s\n", width, l.Name, l.Size, l.Modified, l.Permission); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%s\n", Count(len(lines), "item"))
	return err
}
