package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/state"
)

// ErrReadOnly is returned by mutating operations on a controller built
// without a document manager.
var ErrReadOnly = errors.New("tree has no document manager")

// Rename gives the entry at path a new base name. An invalid name fails with
// ErrInvalidName; the current name is a no-op. Open state below path follows
// the entry to its new location.
func (c *Controller) Rename(ctx context.Context, path, newName string) (string, error) {
	if c.manager == nil {
		return "", ErrReadOnly
	}
	path = pathutil.Normalize(path)
	if path == "" {
		return "", fmt.Errorf("failed to rename: cannot rename the root")
	}
	if !c.manager.IsValidName(newName) {
		return path, fmt.Errorf("failed to rename %s: %w: %q", path, ErrInvalidName, newName)
	}
	if newName == pathutil.Base(path) {
		return path, nil
	}

	newPath := pathutil.Join(pathutil.Dir(path), newName)
	if err := c.move(ctx, path, newPath); err != nil {
		return path, err
	}
	return newPath, nil
}

// Move moves the entry at from into the directory toDir after asking the
// confirmer. A declined confirmation returns ("", nil).
func (c *Controller) Move(ctx context.Context, from, toDir string) (string, error) {
	if c.manager == nil {
		return "", ErrReadOnly
	}
	from = pathutil.Normalize(from)
	toDir = pathutil.Normalize(toDir)
	if from == "" {
		return "", fmt.Errorf("failed to move: cannot move the root")
	}

	newPath := pathutil.Join(toDir, pathutil.Base(from))
	if newPath == from {
		return from, nil
	}

	ok, err := c.confirmer.Confirm(ctx, "Move",
		fmt.Sprintf("Move %s to %s?", from, displayPath(toDir)))
	if err != nil {
		return "", fmt.Errorf("failed to confirm move: %w", err)
	}
	if !ok {
		return "", nil
	}

	if err := c.move(ctx, from, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

func (c *Controller) move(ctx context.Context, from, to string) error {
	if _, err := c.manager.Rename(ctx, from, to); err != nil {
		return err
	}

	c.mu.Lock()
	c.state.RewriteSubtree(from, to)
	if c.hasSel {
		if p, ok := pathutil.Rebase(c.selection, from, to); ok {
			c.selection = p
		}
	}
	if c.hasCtx {
		if p, ok := pathutil.Rebase(c.context, from, to); ok {
			c.context = p
		}
	}
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Delete removes the entry at path after asking the confirmer. A declined
// confirmation returns (false, nil).
func (c *Controller) Delete(ctx context.Context, path string) (bool, error) {
	if c.manager == nil {
		return false, ErrReadOnly
	}
	path = pathutil.Normalize(path)
	if path == "" {
		return false, fmt.Errorf("failed to delete: cannot delete the root")
	}

	ok, err := c.confirmer.Confirm(ctx, "Delete",
		fmt.Sprintf("Are you sure you want to permanently delete: %s?", path))
	if err != nil {
		return false, fmt.Errorf("failed to confirm delete: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := c.manager.DeleteFile(ctx, path); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.state.RewriteSubtree(path, "")
	if c.hasSel && pathutil.IsAncestor(path, c.selection) {
		c.selection, c.hasSel = "", false
	}
	if c.hasCtx && pathutil.IsAncestor(path, c.context) {
		c.context, c.hasCtx = "", false
	}
	c.mu.Unlock()

	return true, c.Refresh(ctx)
}

// CreateFolder creates an untitled directory in dir. An empty dir means the
// directory holding the current selection.
func (c *Controller) CreateFolder(ctx context.Context, dir string) (*models.Entry, error) {
	if c.manager == nil {
		return nil, ErrReadOnly
	}
	if dir == "" {
		dir = c.TargetDir()
	}
	dir = pathutil.Normalize(dir)

	entry, err := c.manager.CreateDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}
	c.openForCreate(dir)
	return entry, c.Refresh(ctx)
}

// CreateFile creates an empty file called name in dir and makes sure dir is
// expanded so the new row is visible.
func (c *Controller) CreateFile(ctx context.Context, dir, name string) (*models.Entry, error) {
	if c.manager == nil {
		return nil, ErrReadOnly
	}
	if !c.manager.IsValidName(name) {
		return nil, fmt.Errorf("failed to create file: %w: %q", ErrInvalidName, name)
	}
	dir = pathutil.Normalize(dir)

	entry, err := c.manager.CreateFile(ctx, pathutil.Join(dir, name))
	if err != nil {
		return nil, err
	}
	c.openForCreate(dir)
	return entry, c.Refresh(ctx)
}

// openForCreate marks dir and its ancestors open so that the refresh after
// a create restores them.
func (c *Controller) openForCreate(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range pathutil.Ancestors(dir) {
		if st, ok := c.state.Get(a); !ok || !st.IsOpen {
			c.state.SetOpen(a, true)
		}
	}
}

// TargetDir returns the directory new entries go into: the selection when it
// is a directory, its parent otherwise, or the root with no selection.
func (c *Controller) TargetDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSel {
		return ""
	}
	if n := c.rows.node(c.selection); n != nil && n.row.IsDir() {
		return c.selection
	}
	return pathutil.Dir(c.selection)
}

// Select highlights path as the current selection.
func (c *Controller) Select(path string) {
	path = pathutil.Normalize(path)
	c.mu.Lock()
	c.selection, c.hasSel = path, true
	c.mu.Unlock()
	c.publishSelection(path, false)
}

// SetContext records path as the target of the context menu.
func (c *Controller) SetContext(path string) {
	path = pathutil.Normalize(path)
	c.mu.Lock()
	c.context, c.hasCtx = path, true
	c.mu.Unlock()
	c.publishSelection(path, true)
}

// Selection returns the selected path.
func (c *Controller) Selection() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection, c.hasSel
}

// Context returns the context-menu target.
func (c *Controller) Context() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.context, c.hasCtx
}

// CopyPath returns the path to put on the clipboard: the context-menu target
// if there is one, else the selection.
func (c *Controller) CopyPath() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasCtx {
		return c.context, true
	}
	return c.selection, c.hasSel
}

func (c *Controller) publishSelection(path string, isContext bool) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish(&events.SelectionEvent{
		BaseEvent: events.NewBase(events.EventSelectionChanged),
		Path:      path,
		Context:   isContext,
	})
}

// Navigate expands every directory on the way to path, expands path itself
// when it is a directory, and selects it.
func (c *Controller) Navigate(ctx context.Context, path string) error {
	path = pathutil.Normalize(path)

	c.mu.Lock()
	if c.rows.Len() == 0 {
		c.mu.Unlock()
		if err := c.Load(ctx); err != nil {
			return err
		}
		c.mu.Lock()
	}
	for _, a := range pathutil.Ancestors(pathutil.Dir(path)) {
		if st, ok := c.state.Get(a); !ok || !st.IsOpen {
			c.state.Set(a, state.DirectoryState{LastModified: st.LastModified, IsOpen: true, Loaded: ok && st.Loaded})
			if ok && st.Loaded {
				c.setOpenLocked(a, true)
			}
		}
	}
	c.flushLocked()
	gen := c.generation
	c.mu.Unlock()

	c.restore(ctx, gen, "")

	row, ok := c.Row(path)
	if path != "" && !ok {
		return fmt.Errorf("failed to navigate to %s: %w", path, ErrRowNotFound)
	}
	if ok && row.IsDir() {
		if st, _ := c.state.Get(path); !st.Loaded || !st.IsOpen {
			if err := c.Toggle(ctx, path, 0); err != nil {
				return err
			}
		}
	}

	c.Select(path)
	return nil
}
