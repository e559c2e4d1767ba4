// Package tree renders a remote content store as a collapsible list of rows
// and keeps that list in step with the server.
//
// The Controller owns the rows and drives the directory state store. Every
// row or state mutation happens under one lock; network I/O happens outside
// it. Renderers receive the resulting insert/remove/show/hide instructions.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/state"
	"github.com/rescale/notebook-filetree/internal/validation"
)

var (
	// ErrRowNotFound is returned when an operation names a path with no row.
	ErrRowNotFound = errors.New("row not found")

	// ErrInvalidName is returned when a new name fails validation. The
	// original name is kept.
	ErrInvalidName = validation.ErrInvalidName

	// ErrStaleFetch is returned when a fetch resolved after a newer refresh
	// rebuilt the rows and its result was discarded.
	ErrStaleFetch = errors.New("directory fetch superseded by a newer refresh")
)

// Options configures a Controller. Zero values pick defaults.
type Options struct {
	Logger             *logging.Logger
	EventBus           *events.EventBus
	Renderer           Renderer
	Confirmer          contents.Confirmer
	RestoreConcurrency int
}

// Controller is the tree engine: reconciliation, expansion, refresh and the
// mutating operations.
type Controller struct {
	store     contents.Store
	manager   contents.DocumentManager
	state     *state.Store
	rows      *Rows
	renderer  Renderer
	confirmer contents.Confirmer
	eventBus  *events.EventBus
	logger    *logging.Logger
	restoreN  int

	mu         sync.Mutex
	generation uint64
	selection  string
	context    string
	hasSel     bool
	hasCtx     bool
}

// NewController creates a controller over store. manager may be nil for a
// read-only tree; st may be nil to use a private state store.
func NewController(store contents.Store, manager contents.DocumentManager, st *state.Store, opts Options) *Controller {
	if st == nil {
		st = state.NewStore(opts.EventBus)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Renderer == nil {
		opts.Renderer = nopRenderer{}
	}
	if opts.Confirmer == nil {
		opts.Confirmer = contents.AutoConfirmer{Answer: true}
	}
	if opts.RestoreConcurrency <= 0 {
		opts.RestoreConcurrency = constants.DefaultRestoreConcurrency
	}

	return &Controller{
		store:     store,
		manager:   manager,
		state:     st,
		rows:      newRows(),
		renderer:  opts.Renderer,
		confirmer: opts.Confirmer,
		eventBus:  opts.EventBus,
		logger:    opts.Logger,
		restoreN:  opts.RestoreConcurrency,
	}
}

// State returns the directory state store.
func (c *Controller) State() *state.Store {
	return c.state
}

// Rows returns a snapshot of every row in display order.
func (c *Controller) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Snapshot()
}

// VisibleRows returns the rows that are not hidden, in display order.
func (c *Controller) VisibleRows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Row
	for n := c.rows.first(); n != nil; n = c.rows.next(n) {
		if !n.row.Hidden {
			out = append(out, n.row)
		}
	}
	return out
}

// Row returns the row for path.
func (c *Controller) Row(path string) (Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Get(path)
}

// Len returns the number of rows.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Len()
}

// flushLocked hands queued render instructions to the renderer.
func (c *Controller) flushLocked() {
	ops := c.rows.drain()
	if len(ops) == 0 {
		return
	}
	c.renderer.Apply(ops)
	metrics.SetTreeRows(c.rows.Len())
}

func (c *Controller) publishTree(path string, open bool) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish(&events.TreeEvent{
		BaseEvent: events.NewBase(eventTypeFor(path)),
		Path:      path,
		Open:      open,
		Rows:      c.Len(),
	})
}

func eventTypeFor(path string) events.EventType {
	if path == "" {
		return events.EventTreeRefreshed
	}
	return events.EventDirectoryToggled
}

// fetch lists the directory at path.
func (c *Controller) fetch(ctx context.Context, path string) (*models.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.FetchTimeout)
	defer cancel()

	entry, err := c.store.Get(ctx, path, contents.GetOptions{Content: true, Type: models.TypeDirectory})
	if err != nil {
		return nil, err
	}
	if !entry.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", displayPath(path))
	}
	return entry, nil
}

// hiddenUnderLocked reports whether a row directly under parent starts out
// hidden, which is the case when parent or any of its ancestors is closed.
func (c *Controller) hiddenUnderLocked(parent string) bool {
	if st, ok := c.state.Get(""); ok && !st.IsOpen {
		return true
	}
	for _, a := range pathutil.Ancestors(parent) {
		st, ok := c.state.Get(a)
		if !ok || !st.IsOpen {
			return true
		}
	}
	return false
}

// ancestorsOpenLocked reports whether every directory above path is open.
func (c *Controller) ancestorsOpenLocked(path string) bool {
	return !c.hiddenUnderLocked(pathutil.Dir(path))
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
