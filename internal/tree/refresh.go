package tree

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/state"
)

type fetchResult struct {
	entry *models.Entry
	err   error
}

// fetchAll lists paths concurrently, at most c.restoreN at a time. A failed
// fetch never cancels its siblings.
func (c *Controller) fetchAll(ctx context.Context, paths []string, content bool) []fetchResult {
	results := make([]fetchResult, len(paths))

	var g errgroup.Group
	g.SetLimit(c.restoreN)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if content {
				results[i].entry, results[i].err = c.fetch(ctx, p)
				return nil
			}
			fctx, cancel := context.WithTimeout(ctx, constants.FetchTimeout)
			defer cancel()
			results[i].entry, results[i].err = c.store.Get(fctx, p, contents.GetOptions{})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Load renders the tree for the first time. It is a Refresh on an empty
// state store.
func (c *Controller) Load(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Refresh re-reads the metadata of every tracked directory, then rebuilds
// all rows from the root and restores the open directories. Directories
// whose metadata fetch fails are forgotten.
func (c *Controller) Refresh(ctx context.Context) error {
	start := time.Now()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	paths := c.state.Paths()
	results := c.fetchAll(ctx, paths, false)
	for i, p := range paths {
		res := results[i]
		if res.err != nil {
			if p == "" {
				continue
			}
			metrics.RecordFetchError("refresh")
			c.logger.Warn().Err(res.err).Str("path", p).Msg("Dropping directory state after failed fetch")
			c.state.Delete(p)
			continue
		}
		c.state.UpdateLastModified(p, res.entry.LastModified)
	}

	root, err := c.fetch(ctx, "")
	if err != nil {
		metrics.RecordFetchError("refresh")
		return fmt.Errorf("failed to refresh: %w", err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.staleFetch("")
		return nil
	}
	c.state.ResetLoaded()
	c.rows.clear()
	rootState, ok := c.state.Get("")
	c.state.Set("", state.DirectoryState{
		LastModified: root.LastModified,
		IsOpen:       !ok || rootState.IsOpen,
		Loaded:       true,
	})
	err = c.reconcileLocked("", root.Children, 1)
	c.flushLocked()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to refresh: %w", err)
	}

	c.restore(ctx, gen, "")

	metrics.RecordRefresh(time.Since(start))
	c.publishTree("", true)
	return nil
}

// restore re-expands the open directories below top that are not loaded,
// skipping those under a closed directory. Listings are fetched
// concurrently and applied shallowest first so every anchor row exists
// before its children go in. Failures are logged and skipped.
func (c *Controller) restore(ctx context.Context, gen uint64, top string) {
	c.mu.Lock()
	var paths []string
	for _, p := range c.state.OpenPaths() {
		if top != "" && !pathutil.IsDescendant(p, top) {
			continue
		}
		if st, _ := c.state.Get(p); st.Loaded {
			continue
		}
		if !c.ancestorsOpenLocked(p) {
			continue
		}
		paths = append(paths, p)
	}
	c.mu.Unlock()
	if len(paths) == 0 {
		return
	}

	results := c.fetchAll(ctx, paths, true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.staleFetch(top)
		return
	}
	for i, p := range paths {
		res := results[i]
		if res.err != nil {
			metrics.RecordFetchError("restore")
			c.logger.Warn().Err(res.err).Str("path", p).Msg("Failed to restore directory")
			continue
		}
		if c.rows.node(p) == nil || !c.ancestorsOpenLocked(p) {
			continue
		}
		c.state.Set(p, state.DirectoryState{
			LastModified: res.entry.LastModified,
			IsOpen:       true,
			Loaded:       true,
		})
		if err := c.reconcileLocked(p, res.entry.Children, 1+pathutil.SegmentCount(p)); err != nil {
			c.logger.Warn().Err(err).Str("path", p).Msg("Failed to restore directory")
		}
	}
	c.flushLocked()
}

func (c *Controller) staleFetch(path string) {
	metrics.RecordStaleFetch()
	c.logger.Debug().Str("path", displayPath(path)).Msg("Discarding directory listing from before the last refresh")
}

// Poller refreshes a Controller on a fixed interval.
type Poller struct {
	controller *Controller
	interval   time.Duration
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(c *Controller, interval time.Duration) *Poller {
	return &Poller{controller: c, interval: interval}
}

// Run refreshes every interval until ctx is done. Refresh errors are logged
// and polling goes on.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.interval)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.controller.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.controller.logger.Warn().Err(err).Msg("Background refresh failed")
			}
		}
	}
}
