package tree

import (
	"sort"

	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/state"
)

// SortEntries returns children ordered by name in byte order. Ties keep the
// listing order and directories are not grouped first.
func SortEntries(children []models.Entry) []models.Entry {
	sorted := make([]models.Entry, len(children))
	copy(sorted, children)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// Reconcile merges a directory listing into the rows under parent, placing
// the children at the given level. parent must be the root or have a row.
func (c *Controller) Reconcile(parent string, children []models.Entry, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.reconcileLocked(pathutil.Normalize(parent), children, level)
	c.flushLocked()
	return err
}

// reconcileLocked makes the rows directly under parent match children:
// existing rows are replaced in place (keeping their rendered subtree),
// new ones inserted after the previous sibling's block and rows missing
// from the listing removed with their subtree. Running it twice with the
// same listing leaves the rows unchanged.
func (c *Controller) reconcileLocked(parent string, children []models.Entry, level int) error {
	var anchor *node
	if parent != "" {
		anchor = c.rows.node(parent)
		if anchor == nil {
			return ErrRowNotFound
		}
	}

	sorted := SortEntries(children)
	present := make(map[string]bool, len(sorted))
	for _, e := range sorted {
		present[pathutil.Join(parent, e.Name)] = true
	}
	c.removeMissingLocked(parent, anchor, present)

	hidden := c.hiddenUnderLocked(parent)
	prev := anchor
	for _, e := range sorted {
		path := pathutil.Join(parent, e.Name)
		e.Path = path
		e.Children = nil
		row := Row{
			Key:    pathutil.EncodeKey(path),
			Path:   path,
			Name:   e.Name,
			Level:  level,
			Hidden: hidden,
			Entry:  e,
		}

		n := c.rows.node(path)
		if n != nil && n.row.IsDir() != e.IsDir() {
			c.rows.removeBlock(n)
			n = nil
		}
		if n != nil {
			c.rows.moveBlockAfter(n, prev)
			c.rows.replace(n, row)
		} else {
			n = c.rows.insertAfter(prev, row)
		}
		prev = c.rows.blockEnd(n)

		if e.IsDir() {
			c.state.SetIfAbsent(path, state.DirectoryState{LastModified: e.LastModified})
		}
	}
	return nil
}

// removeMissingLocked drops the direct children of parent whose path is not
// in present, each with its whole block.
func (c *Controller) removeMissingLocked(parent string, anchor *node, present map[string]bool) {
	x := c.rows.first()
	if anchor != nil {
		x = c.rows.next(anchor)
	}
	for x != nil && isUnder(x.row.Path, anchor) {
		end := c.rows.blockEnd(x)
		after := c.rows.next(end)
		if pathutil.Dir(x.row.Path) == parent && !present[x.row.Path] {
			c.rows.removeBlock(x)
		}
		x = after
	}
}
