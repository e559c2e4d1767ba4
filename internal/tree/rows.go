package tree

import (
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

// Row is one rendered line of the tree.
type Row struct {
	Key    string       `json:"key"` // pathutil.EncodeKey(Path)
	Path   string       `json:"path"`
	Name   string       `json:"name"`
	Level  int          `json:"level"` // 1 for children of the root
	Hidden bool         `json:"hidden"`
	Entry  models.Entry `json:"entry"`
}

// IsDir reports whether the row is a directory.
func (r Row) IsDir() bool {
	return r.Entry.IsDir()
}

// OpKind is a render instruction.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpRemove OpKind = "remove"
	OpShow   OpKind = "show"
	OpHide   OpKind = "hide"
	OpClear  OpKind = "clear"
)

// Op is a single mutation of the rendered rows. Insert places Row right
// after the row keyed After, or at the top when After is empty.
type Op struct {
	Kind  OpKind `json:"kind"`
	Key   string `json:"key,omitempty"`
	After string `json:"after,omitempty"`
	Row   *Row   `json:"row,omitempty"`
}

// Renderer consumes render instructions in order. Apply is called with the
// controller's lock held and must not call back into the controller.
type Renderer interface {
	Apply(ops []Op)
}

type nopRenderer struct{}

func (nopRenderer) Apply([]Op) {}

type node struct {
	row        Row
	prev, next *node
}

// Rows is the ordered row list plus a path index. A directory's subtree
// always forms a contiguous block right after the directory's row.
// Not safe for concurrent use; the Controller serializes access.
type Rows struct {
	head    node // sentinel of a circular list
	index   map[string]*node
	pending []Op
}

func newRows() *Rows {
	r := &Rows{index: make(map[string]*node)}
	r.head.prev = &r.head
	r.head.next = &r.head
	return r
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	return len(r.index)
}

// Get returns the row for path.
func (r *Rows) Get(path string) (Row, bool) {
	n, ok := r.index[pathutil.Normalize(path)]
	if !ok {
		return Row{}, false
	}
	return n.row, true
}

// Snapshot returns every row in display order.
func (r *Rows) Snapshot() []Row {
	out := make([]Row, 0, len(r.index))
	for n := r.first(); n != nil; n = r.next(n) {
		out = append(out, n.row)
	}
	return out
}

func (r *Rows) node(path string) *node {
	return r.index[path]
}

func (r *Rows) first() *node {
	return r.next(&r.head)
}

func (r *Rows) next(n *node) *node {
	if n.next == &r.head {
		return nil
	}
	return n.next
}

func (r *Rows) keyOf(n *node) string {
	if n == nil || n == &r.head {
		return ""
	}
	return n.row.Key
}

func (r *Rows) link(after, n *node) {
	if after == nil {
		after = &r.head
	}
	n.prev = after
	n.next = after.next
	after.next.prev = n
	after.next = n
}

func (r *Rows) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

// insertAfter adds row after the given node (nil for the top).
func (r *Rows) insertAfter(after *node, row Row) *node {
	n := &node{row: row}
	r.link(after, n)
	r.index[row.Path] = n
	copied := row
	r.pending = append(r.pending, Op{Kind: OpInsert, Key: row.Key, After: r.keyOf(after), Row: &copied})
	return n
}

// isUnder reports whether p is inside the subtree of the row n, where nil
// stands for the root.
func isUnder(p string, n *node) bool {
	if n == nil {
		return true
	}
	return pathutil.IsDescendant(p, n.row.Path)
}

// blockEnd returns the last node of n's subtree block.
func (r *Rows) blockEnd(n *node) *node {
	end := n
	for x := r.next(n); x != nil && isUnder(x.row.Path, n); x = r.next(x) {
		end = x
	}
	return end
}

// block returns n and its descendants in order.
func (r *Rows) block(n *node) []*node {
	out := []*node{n}
	for x := r.next(n); x != nil && isUnder(x.row.Path, n); x = r.next(x) {
		out = append(out, x)
	}
	return out
}

// descendants returns the rows below n, or every row for the root.
func (r *Rows) descendants(n *node) []*node {
	var out []*node
	start := r.first()
	if n != nil {
		start = r.next(n)
	}
	for x := start; x != nil && isUnder(x.row.Path, n); x = r.next(x) {
		out = append(out, x)
	}
	return out
}

// removeBlock drops n and its subtree and returns the number of rows.
func (r *Rows) removeBlock(n *node) int {
	nodes := r.block(n)
	for _, x := range nodes {
		r.unlink(x)
		delete(r.index, x.row.Path)
		r.pending = append(r.pending, Op{Kind: OpRemove, Key: x.row.Key})
	}
	return len(nodes)
}

// moveBlockAfter relocates n's block so that it follows after (nil for
// the top). It is a no-op when the block is already there.
func (r *Rows) moveBlockAfter(n, after *node) {
	prev := n.prev
	if prev == &r.head {
		prev = nil
	}
	if prev == after {
		return
	}

	nodes := r.block(n)
	for _, x := range nodes {
		r.unlink(x)
		r.pending = append(r.pending, Op{Kind: OpRemove, Key: x.row.Key})
	}
	for _, x := range nodes {
		r.link(after, x)
		copied := x.row
		r.pending = append(r.pending, Op{Kind: OpInsert, Key: x.row.Key, After: r.keyOf(after), Row: &copied})
		after = x
	}
}

// replace swaps the row held by n in place. The subtree block is kept.
func (r *Rows) replace(n *node, row Row) {
	n.row = row
	copied := row
	r.pending = append(r.pending,
		Op{Kind: OpRemove, Key: row.Key},
		Op{Kind: OpInsert, Key: row.Key, After: r.keyOf(n.prev), Row: &copied},
	)
}

func (r *Rows) setHidden(n *node, hidden bool) {
	if n.row.Hidden == hidden {
		return
	}
	n.row.Hidden = hidden
	kind := OpShow
	if hidden {
		kind = OpHide
	}
	r.pending = append(r.pending, Op{Kind: kind, Key: n.row.Key})
}

func (r *Rows) clear() {
	r.head.prev = &r.head
	r.head.next = &r.head
	r.index = make(map[string]*node)
	r.pending = append(r.pending, Op{Kind: OpClear})
}

// drain returns and forgets the queued render instructions.
func (r *Rows) drain() []Op {
	ops := r.pending
	r.pending = nil
	return ops
}
