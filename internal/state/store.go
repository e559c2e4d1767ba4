// Package state holds the per-directory tree state: which directories are
// open, whether their children have been rendered, and the last known
// modification time used to spot server-side changes.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

// DirectoryState is the cached state of one directory.
type DirectoryState struct {
	LastModified time.Time
	IsOpen       bool
	// Loaded is set once the directory's children are in the current
	// render. An entry with Loaded false is treated as never expanded.
	Loaded bool
}

// Store maps canonical directory paths to their state. The root is "".
// Thread-safe for concurrent access.
type Store struct {
	dirs     map[string]DirectoryState
	eventBus *events.EventBus

	mu sync.RWMutex
}

// NewStore creates an empty store. eventBus may be nil.
func NewStore(eventBus *events.EventBus) *Store {
	return &Store{
		dirs:     make(map[string]DirectoryState),
		eventBus: eventBus,
	}
}

func (s *Store) publish(path string, st DirectoryState, removed bool) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(&events.StateEvent{
		BaseEvent: events.NewBase(events.EventStateChanged),
		Path:      path,
		IsOpen:    st.IsOpen,
		Removed:   removed,
	})
}

// Get returns the state of path.
func (s *Store) Get(path string) (DirectoryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.dirs[pathutil.Normalize(path)]
	return st, ok
}

// Set overwrites the state of path.
func (s *Store) Set(path string, st DirectoryState) {
	path = pathutil.Normalize(path)
	s.mu.Lock()
	s.dirs[path] = st
	s.mu.Unlock()

	s.publish(path, st, false)
}

// SetIfAbsent stores st unless path already has a state, and reports
// whether it did.
func (s *Store) SetIfAbsent(path string, st DirectoryState) bool {
	path = pathutil.Normalize(path)
	s.mu.Lock()
	if _, ok := s.dirs[path]; ok {
		s.mu.Unlock()
		return false
	}
	s.dirs[path] = st
	s.mu.Unlock()

	s.publish(path, st, false)
	return true
}

// SetOpen sets IsOpen on path, creating the entry if needed, and returns
// the resulting state.
func (s *Store) SetOpen(path string, open bool) DirectoryState {
	path = pathutil.Normalize(path)
	s.mu.Lock()
	st := s.dirs[path]
	st.IsOpen = open
	s.dirs[path] = st
	s.mu.Unlock()

	s.publish(path, st, false)
	return st
}

// UpdateLastModified records t for path if path is tracked and t is newer
// than the cached value. It reports whether the value changed.
func (s *Store) UpdateLastModified(path string, t time.Time) bool {
	path = pathutil.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.dirs[path]
	if !ok || !t.After(st.LastModified) {
		return false
	}
	st.LastModified = t
	s.dirs[path] = st
	return true
}

// Delete removes path's state. Descendants are left alone; use
// RewriteSubtree to drop a whole subtree.
func (s *Store) Delete(path string) {
	path = pathutil.Normalize(path)
	s.mu.Lock()
	st, ok := s.dirs[path]
	delete(s.dirs, path)
	s.mu.Unlock()

	if ok {
		s.publish(path, st, true)
	}
}

// RewriteSubtree re-keys oldPrefix and every path below it to the matching
// path under newPrefix. An empty newPrefix drops the keys instead.
// Matching is by whole path segments, so "foo2" is never under "foo".
// It returns the number of keys affected.
func (s *Store) RewriteSubtree(oldPrefix, newPrefix string) int {
	oldPrefix = pathutil.Normalize(oldPrefix)
	newPrefix = pathutil.Normalize(newPrefix)
	if oldPrefix == "" || oldPrefix == newPrefix {
		return 0
	}

	type change struct {
		path    string
		st      DirectoryState
		removed bool
	}
	var changes []change

	affected := 0
	s.mu.Lock()
	moved := make(map[string]DirectoryState)
	for path, st := range s.dirs {
		if !pathutil.IsAncestor(oldPrefix, path) {
			continue
		}
		affected++
		delete(s.dirs, path)
		changes = append(changes, change{path: path, st: st, removed: true})
		if newPrefix == "" {
			continue
		}
		if rebased, ok := pathutil.Rebase(path, oldPrefix, newPrefix); ok {
			moved[rebased] = st
		}
	}
	for path, st := range moved {
		s.dirs[path] = st
		changes = append(changes, change{path: path, st: st})
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.publish(c.path, c.st, c.removed)
	}
	return affected
}

// Paths returns every tracked path in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.dirs))
	for path := range s.dirs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// OpenPaths returns the open directories other than the root, shallowest
// first. Paths of equal depth are sorted by name.
func (s *Store) OpenPaths() []string {
	s.mu.RLock()
	var paths []string
	for path, st := range s.dirs {
		if st.IsOpen && path != "" {
			paths = append(paths, path)
		}
	}
	s.mu.RUnlock()

	sort.Slice(paths, func(i, j int) bool {
		di, dj := pathutil.SegmentCount(paths[i]), pathutil.SegmentCount(paths[j])
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
	return paths
}

// ResetLoaded clears Loaded on every entry. A full rebuild calls it before
// clearing the rendered rows.
func (s *Store) ResetLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, st := range s.dirs {
		st.Loaded = false
		s.dirs[path] = st
	}
}

// Len returns the number of tracked directories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirs)
}
