// Package memstore is an in-memory contents.Backend. The CLI exposes it as
// the "memory" backend for demos; tests use it as the shared fake.
package memstore

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

type node struct {
	entry    models.Entry
	children []string // child names in creation order
	data     []byte
}

// Store is a thread-safe in-memory content tree.
type Store struct {
	mu       sync.Mutex
	nodes    map[string]*node
	chunking bool
	now      func() time.Time
	saves    []models.SaveModel
	gets     map[string]int

	// OnGet and OnSave run before the operation; a non-nil error fails it.
	OnGet  func(ctx context.Context, path string) error
	OnSave func(ctx context.Context, path string, model *models.SaveModel) error
}

var _ contents.Backend = (*Store)(nil)
var _ contents.Downloader = (*Store)(nil)

// New returns a store holding only the root directory. Chunked saves are
// supported by default.
func New() *Store {
	s := &Store{
		nodes:    make(map[string]*node),
		chunking: true,
		now:      func() time.Time { return time.Now().UTC() },
		gets:     make(map[string]int),
	}
	now := s.now()
	s.nodes[""] = &node{entry: models.Entry{
		Type:         models.TypeDirectory,
		Writable:     true,
		Created:      now,
		LastModified: now,
	}}
	return s
}

// SetChunking toggles chunked save support.
func (s *Store) SetChunking(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunking = enabled
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// MkdirAll creates path and any missing parents.
func (s *Store) MkdirAll(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAllLocked(pathutil.Normalize(path))
}

// WriteFile creates or replaces the file at path, creating parents.
func (s *Store) WriteFile(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path = pathutil.Normalize(path)
	s.mkdirAllLocked(pathutil.Dir(path))
	n := s.nodes[path]
	if n == nil {
		n = s.createLocked(path, contents.TypeForPath(path))
	}
	n.data = append([]byte(nil), data...)
	s.touchLocked(path)
}

// SetWritable flips the writable flag on path.
func (s *Store) SetWritable(path string, writable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.nodes[pathutil.Normalize(path)]; n != nil {
		n.entry.Writable = writable
	}
}

// Touch bumps last_modified of path (and its parent listing).
func (s *Store) Touch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(pathutil.Normalize(path))
}

// FileData returns a copy of the stored bytes of path.
func (s *Store) FileData(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodes[pathutil.Normalize(path)]
	if n == nil || n.entry.IsDir() {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[pathutil.Normalize(path)]
	return ok
}

// Saves returns every model passed to Save, in call order.
func (s *Store) Saves() []models.SaveModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SaveModel(nil), s.saves...)
}

// GetCount returns how many times Get was called for path.
func (s *Store) GetCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[pathutil.Normalize(path)]
}

// Get implements contents.Store.
func (s *Store) Get(ctx context.Context, path string, opts contents.GetOptions) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	if s.OnGet != nil {
		if err := s.OnGet(ctx, path); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets[path]++
	n := s.nodes[path]
	if n == nil {
		return nil, notFound("get", path)
	}

	out := s.metaLocked(n)
	if !opts.Content {
		return &out, nil
	}

	out.HasContent = true
	if n.entry.IsDir() {
		out.Children = make([]models.Entry, 0, len(n.children))
		for _, name := range n.children {
			out.Children = append(out.Children, s.metaLocked(s.nodes[pathutil.Join(path, name)]))
		}
		out.Format = models.FormatJSON
		return &out, nil
	}

	contents.SetPayload(&out, n.data, opts.Format)
	return &out, nil
}

// Save implements contents.Store. Chunk 1 replaces the file, later chunks
// append, so an interrupted upload leaves the partial file behind.
func (s *Store) Save(ctx context.Context, path string, model *models.SaveModel) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	if s.OnSave != nil {
		if err := s.OnSave(ctx, path, model); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves = append(s.saves, *model)

	if model.IsChunk() && !s.chunking {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: http.StatusBadRequest, Message: contents.ErrChunkingUnsupported.Error()}
	}
	if path == "" {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: http.StatusBadRequest, Message: "cannot save root"}
	}

	parent := s.nodes[pathutil.Dir(path)]
	if parent == nil || !parent.entry.IsDir() {
		return nil, notFound("save", pathutil.Dir(path))
	}

	if model.Type == models.TypeDirectory {
		n := s.nodes[path]
		if n == nil {
			n = s.createLocked(path, models.TypeDirectory)
		} else if !n.entry.IsDir() {
			return nil, &contents.StatusError{Op: "save", Path: path, Code: http.StatusBadRequest, Message: "not a directory"}
		}
		out := s.metaLocked(n)
		return &out, nil
	}

	data, err := contents.DecodeSaveContent(model)
	if err != nil {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: http.StatusBadRequest, Message: err.Error()}
	}

	n := s.nodes[path]
	if n != nil && n.entry.IsDir() {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: http.StatusBadRequest, Message: "is a directory"}
	}
	if n == nil {
		typ := model.Type
		if typ == "" {
			typ = contents.TypeForPath(path)
		}
		n = s.createLocked(path, typ)
	}

	switch {
	case model.Chunk > 1, model.Chunk < 0:
		n.data = append(n.data, data...)
	default:
		n.data = data
	}
	s.touchLocked(path)

	out := s.metaLocked(n)
	return &out, nil
}

// DownloadURL implements contents.Store.
func (s *Store) DownloadURL(_ context.Context, path string) (string, error) {
	path = pathutil.Normalize(path)
	if !s.Exists(path) {
		return "", notFound("download", path)
	}
	return "mem:///" + path, nil
}

// Download implements contents.Downloader.
func (s *Store) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, ok := s.FileData(path)
	if !ok {
		return 0, notFound("download", pathutil.Normalize(path))
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Rename implements contents.Backend.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oldPath, newPath = pathutil.Normalize(oldPath), pathutil.Normalize(newPath)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.nodes[oldPath]
	if n == nil || oldPath == "" {
		return nil, notFound("rename", oldPath)
	}
	if _, exists := s.nodes[newPath]; exists {
		return nil, &contents.StatusError{Op: "rename", Path: newPath, Code: http.StatusConflict}
	}
	if pathutil.IsAncestor(oldPath, newPath) {
		return nil, &contents.StatusError{Op: "rename", Path: newPath, Code: http.StatusBadRequest, Message: "cannot move into itself"}
	}
	newParent := s.nodes[pathutil.Dir(newPath)]
	if newParent == nil || !newParent.entry.IsDir() {
		return nil, notFound("rename", pathutil.Dir(newPath))
	}

	s.unlinkLocked(oldPath)

	moved := make(map[string]*node)
	for p, nd := range s.nodes {
		if rebased, ok := pathutil.Rebase(p, oldPath, newPath); ok {
			delete(s.nodes, p)
			nd.entry.Path = rebased
			nd.entry.Name = pathutil.Base(rebased)
			moved[rebased] = nd
		}
	}
	for p, nd := range moved {
		s.nodes[p] = nd
	}

	newParent.children = append(newParent.children, pathutil.Base(newPath))
	s.touchLocked(newPath)

	out := s.metaLocked(s.nodes[newPath])
	return &out, nil
}

// Delete implements contents.Backend.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = pathutil.Normalize(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		return &contents.StatusError{Op: "delete", Path: path, Code: http.StatusForbidden, Message: "cannot delete root"}
	}
	if s.nodes[path] == nil {
		return notFound("delete", path)
	}

	s.unlinkLocked(path)
	for p := range s.nodes {
		if pathutil.IsAncestor(path, p) {
			delete(s.nodes, p)
		}
	}
	s.touchLocked(pathutil.Dir(path))
	return nil
}

// NewUntitled implements contents.Backend using the notebook server's naming:
// "Untitled Folder", "Untitled Folder 1", ... and "untitled", "untitled1", ...
func (s *Store) NewUntitled(ctx context.Context, dir string, typ models.EntryType) (*models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir = pathutil.Normalize(dir)

	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.nodes[dir]
	if parent == nil || !parent.entry.IsDir() {
		return nil, notFound("new", dir)
	}

	name := contents.UntitledName(typ, 0)
	for i := 1; s.nodes[pathutil.Join(dir, name)] != nil; i++ {
		name = contents.UntitledName(typ, i)
	}

	n := s.createLocked(pathutil.Join(dir, name), typ)
	out := s.metaLocked(n)
	return &out, nil
}

// SupportsChunking implements contents.Backend.
func (s *Store) SupportsChunking(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunking, nil
}

func (s *Store) mkdirAllLocked(path string) {
	for _, p := range pathutil.Ancestors(path) {
		if s.nodes[p] == nil {
			s.createLocked(p, models.TypeDirectory)
		}
	}
}

func (s *Store) createLocked(path string, typ models.EntryType) *node {
	now := s.now()
	n := &node{entry: models.Entry{
		Name:         pathutil.Base(path),
		Path:         path,
		Type:         typ,
		Writable:     true,
		Created:      now,
		LastModified: now,
	}}
	s.nodes[path] = n
	if parent := s.nodes[pathutil.Dir(path)]; parent != nil {
		parent.children = append(parent.children, n.entry.Name)
	}
	s.touchLocked(path)
	return n
}

func (s *Store) unlinkLocked(path string) {
	parent := s.nodes[pathutil.Dir(path)]
	if parent == nil {
		return
	}
	name := pathutil.Base(path)
	for i, c := range parent.children {
		if c == name {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	s.touchLocked(pathutil.Dir(path))
}

func (s *Store) touchLocked(path string) {
	now := s.now()
	if n := s.nodes[path]; n != nil {
		n.entry.LastModified = now
	}
	if path == "" {
		return
	}
	if parent := s.nodes[pathutil.Dir(path)]; parent != nil {
		parent.entry.LastModified = now
	}
}

func (s *Store) metaLocked(n *node) models.Entry {
	out := n.entry
	out.Children = nil
	out.Data = ""
	out.HasContent = false
	if !out.IsDir() {
		size := int64(len(n.data))
		out.Size = &size
	}
	return out
}

func notFound(op, path string) error {
	return &contents.StatusError{Op: op, Path: path, Code: http.StatusNotFound}
}
