package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/state"
)

// Toggle expands or collapses the directory at path. A directory whose
// children are not rendered yet is fetched and expanded; otherwise its
// rows are shown or hidden without touching the server. level is the level
// of the children, 0 meaning one below path.
func (c *Controller) Toggle(ctx context.Context, path string, level int) error {
	path = pathutil.Normalize(path)
	if level <= 0 {
		level = 1 + pathutil.SegmentCount(path)
	}

	for attempt := 0; attempt < 2; attempt++ {
		c.mu.Lock()
		if path != "" && c.rows.node(path) == nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to toggle %s: %w", path, ErrRowNotFound)
		}
		if st, ok := c.state.Get(path); ok && st.Loaded {
			open := !st.IsOpen
			c.setOpenLocked(path, open)
			c.flushLocked()
			c.mu.Unlock()
			c.publishTree(path, open)
			return nil
		}
		gen := c.generation
		c.mu.Unlock()

		err := c.expand(ctx, path, level, gen)
		if errors.Is(err, ErrStaleFetch) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", displayPath(path), err)
		}
		c.publishTree(path, true)
		return nil
	}
	return fmt.Errorf("failed to expand %s: %w", displayPath(path), ErrStaleFetch)
}

// expand loads an unloaded directory and restores the open directories
// below it.
func (c *Controller) expand(ctx context.Context, path string, level int, gen uint64) error {
	entry, err := c.fetch(ctx, path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.staleFetch(path)
		return ErrStaleFetch
	}
	if path != "" && c.rows.node(path) == nil {
		c.mu.Unlock()
		return ErrRowNotFound
	}
	c.state.Set(path, state.DirectoryState{
		LastModified: entry.LastModified,
		IsOpen:       true,
		Loaded:       true,
	})
	err = c.reconcileLocked(path, entry.Children, level)
	c.flushLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.restore(ctx, gen, path)
	return nil
}

// setOpenLocked flips a loaded directory and updates the visibility of its
// rendered descendants. On expand a row becomes visible only when every
// directory between path and the row is open.
func (c *Controller) setOpenLocked(path string, open bool) {
	c.state.SetOpen(path, open)

	var n *node
	if path != "" {
		n = c.rows.node(path)
		if n == nil {
			return
		}
	}
	// The rows above path decide whether path itself is shown at all.
	visibleAbove := path == "" || c.ancestorsOpenLocked(path)

	for _, d := range c.rows.descendants(n) {
		if !open || !visibleAbove {
			c.rows.setHidden(d, true)
			continue
		}
		c.rows.setHidden(d, !c.openBetweenLocked(path, d.row.Path))
	}
}

// openBetweenLocked reports whether every directory strictly between top and
// p is open.
func (c *Controller) openBetweenLocked(top, p string) bool {
	for _, a := range pathutil.Ancestors(pathutil.Dir(p)) {
		if !pathutil.IsDescendant(a, top) {
			continue
		}
		st, ok := c.state.Get(a)
		if !ok || !st.IsOpen {
			return false
		}
	}
	return true
}
