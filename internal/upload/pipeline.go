// Package upload sends local files into the content store, in fixed-size
// base64 chunks when the server supports it.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/validation"
)

var (
	// ErrCancelled is wrapped by every outcome that is a cancellation rather
	// than a failure. Callers should stay silent about it.
	ErrCancelled = errors.New("upload cancelled")

	// ErrNotUploaded is returned when an overwrite is declined. The whole
	// batch is skipped.
	ErrNotUploaded = fmt.Errorf("%w: not uploaded", ErrCancelled)

	// ErrDisposed is returned when the pipeline is disposed mid-upload.
	ErrDisposed = fmt.Errorf("%w: pipeline disposed", ErrCancelled)

	// ErrFileTooLarge is returned for files above the large file threshold
	// when the server cannot take chunks.
	ErrFileTooLarge = errors.New("file too large to upload without chunking")
)

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Backend is what the pipeline needs from the content store.
type Backend interface {
	contents.Store
	SupportsChunking(ctx context.Context) (bool, error)
}

// File is a local blob to upload.
type File struct {
	Name string
	Size int64
	Data io.ReaderAt
}

// Chunked modes accepted in Options.Chunked.
const (
	ChunkedAuto = "auto"
	ChunkedOn   = "on"
	ChunkedOff  = "off"
)

// Options configures a Pipeline. Zero values pick defaults.
type Options struct {
	Logger             *logging.Logger
	EventBus           *events.EventBus
	Confirmer          contents.Confirmer
	ChunkSize          int64
	LargeFileThreshold int64
	Chunked            string
}

// OptionsFromConfig fills the upload settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChunkSize:          cfg.Upload.ChunkSize,
		LargeFileThreshold: cfg.Upload.LargeFileThreshold,
		Chunked:            cfg.Upload.Chunked,
	}
}

// Pipeline uploads files. One Pipeline may run several uploads at once;
// chunks of a single upload are always sent one after another.
type Pipeline struct {
	backend   Backend
	logger    *logging.Logger
	eventBus  *events.EventBus
	confirmer contents.Confirmer
	chunkSize int64
	threshold int64
	chunked   string

	disposed atomic.Bool

	mu      sync.Mutex
	pending map[string]*PendingUpload // by destination path
}

// NewPipeline creates a pipeline writing to backend.
func NewPipeline(backend Backend, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Confirmer == nil {
		opts.Confirmer = contents.AutoConfirmer{Answer: true}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = constants.ChunkSize
	}
	if opts.LargeFileThreshold <= 0 {
		opts.LargeFileThreshold = constants.LargeFileThreshold
	}
	if opts.Chunked == "" {
		opts.Chunked = ChunkedAuto
	}

	return &Pipeline{
		backend:   backend,
		logger:    opts.Logger,
		eventBus:  opts.EventBus,
		confirmer: opts.Confirmer,
		chunkSize: opts.ChunkSize,
		threshold: opts.LargeFileThreshold,
		chunked:   opts.Chunked,
		pending:   make(map[string]*PendingUpload),
	}
}

// Dispose stops every running chunked upload before its next chunk and
// makes later uploads fail with ErrDisposed.
func (p *Pipeline) Dispose() {
	p.disposed.Store(true)
}

// Disposed reports whether Dispose was called.
func (p *Pipeline) Disposed() bool {
	return p.disposed.Load()
}

// Pending returns the in-flight chunked uploads ordered by path.
func (p *Pipeline) Pending() []PendingUpload {
	p.mu.Lock()
	out := make([]PendingUpload, 0, len(p.pending))
	for _, u := range p.pending {
		out = append(out, u.Clone())
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (p *Pipeline) track(u *PendingUpload) {
	p.mu.Lock()
	p.pending[u.Path] = u
	p.mu.Unlock()
}

func (p *Pipeline) forget(u *PendingUpload) {
	p.mu.Lock()
	if p.pending[u.Path] == u {
		delete(p.pending, u.Path)
	}
	p.mu.Unlock()
}

func (p *Pipeline) chunkingSupported(ctx context.Context) (bool, error) {
	switch p.chunked {
	case ChunkedOff:
		return false, nil
	case ChunkedOn:
		return true, nil
	}
	ok, err := p.backend.SupportsChunking(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check chunked upload support: %w", err)
	}
	return ok, nil
}

// Upload sends file into dir and returns the stored entry.
func (p *Pipeline) Upload(ctx context.Context, file File, dir string) (*models.Entry, error) {
	entries, err := p.UploadFiles(ctx, []File{file}, dir)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// UploadFiles sends every file into dir. Size and overwrite checks run for
// the whole batch before any byte is sent; declining any overwrite skips
// the batch. Files are uploaded one at a time and the first failure stops
// the batch.
func (p *Pipeline) UploadFiles(ctx context.Context, files []File, dir string) ([]*models.Entry, error) {
	dir = pathutil.Normalize(dir)
	if p.Disposed() {
		return nil, ErrDisposed
	}

	chunking, err := p.chunkingSupported(ctx)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if err := validation.ValidateName(f.Name); err != nil {
			return nil, fmt.Errorf("failed to upload %q: %w", f.Name, err)
		}
		if f.Size <= p.threshold {
			continue
		}
		if !chunking {
			return nil, fmt.Errorf("failed to upload %s (%d bytes): %w", f.Name, f.Size, ErrFileTooLarge)
		}
		ok, err := p.confirmer.ConfirmLargeUpload(ctx, f.Name, f.Size)
		if err != nil {
			return nil, fmt.Errorf("failed to confirm upload of %s: %w", f.Name, err)
		}
		if !ok {
			return nil, fmt.Errorf("upload of %s: %w", f.Name, ErrCancelled)
		}
	}

	if err := p.confirmOverwrites(ctx, files, dir); err != nil {
		return nil, err
	}

	out := make([]*models.Entry, 0, len(files))
	for _, f := range files {
		path := pathutil.Join(dir, f.Name)
		var entry *models.Entry
		if chunking && f.Size > p.chunkSize {
			entry, err = p.uploadChunked(ctx, f, path)
		} else {
			entry, err = p.uploadSingle(ctx, f, path)
		}
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// confirmOverwrites lists dir once and asks about every name collision.
func (p *Pipeline) confirmOverwrites(ctx context.Context, files []File, dir string) error {
	listing, err := p.backend.Get(ctx, dir, contents.GetOptions{Content: true, Type: models.TypeDirectory})
	if err != nil {
		return fmt.Errorf("failed to list %q: %w", dir, err)
	}
	existing := make(map[string]bool, len(listing.Children))
	for _, c := range listing.Children {
		existing[c.Name] = true
	}

	for _, f := range files {
		if !existing[f.Name] {
			continue
		}
		path := pathutil.Join(dir, f.Name)
		ok, err := p.confirmer.ConfirmOverwrite(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to confirm overwrite of %s: %w", path, err)
		}
		if !ok {
			return fmt.Errorf("%s exists: %w", path, ErrNotUploaded)
		}
	}
	return nil
}

func (p *Pipeline) uploadSingle(ctx context.Context, f File, path string) (*models.Entry, error) {
	id := uuid.NewString()
	p.publish(events.EventUploadStarted, id, path, f.Size, 0, false, nil)

	data := make([]byte, f.Size)
	if n, err := f.Data.ReadAt(data, 0); err != nil && !(errors.Is(err, io.EOF) && int64(n) == f.Size) {
		return nil, p.fail(id, path, f.Size, false, fmt.Errorf("failed to read %s: %w", f.Name, err))
	}

	entry, err := p.backend.Save(ctx, path, saveModel(f.Name, path, data, 0))
	if err != nil {
		return nil, p.fail(id, path, f.Size, false, fmt.Errorf("failed to upload %s: %w", path, err))
	}

	p.finish(id, path, f.Size, false)
	return entry, nil
}

// uploadChunked sends f in increasing-offset chunks. Intermediate chunks
// are numbered end/chunkSize starting at 1; the last is LastChunk.
func (p *Pipeline) uploadChunked(ctx context.Context, f File, path string) (*models.Entry, error) {
	u := newPendingUpload(path, f.Name, f.Size)
	p.track(u)
	p.publish(events.EventUploadStarted, u.ID, path, f.Size, 0, true, nil)
	p.logger.Debug().Str("path", path).Int64("size", f.Size).Str("upload_id", u.ID).Msg("Starting chunked upload")

	buf := make([]byte, p.chunkSize)
	for start := int64(0); ; start += p.chunkSize {
		if p.Disposed() {
			return nil, p.failPending(u, fmt.Errorf("upload of %s aborted: %w", path, ErrDisposed))
		}
		if err := ctx.Err(); err != nil {
			return nil, p.failPending(u, fmt.Errorf("upload of %s aborted: %w: %w", path, ErrCancelled, err))
		}

		end := start + p.chunkSize
		last := end >= f.Size
		if last {
			end = f.Size
		}
		chunk := buf[:end-start]
		if n, err := f.Data.ReadAt(chunk, start); err != nil && !(errors.Is(err, io.EOF) && n == len(chunk)) {
			return nil, p.failPending(u, fmt.Errorf("failed to read %s at %d: %w", f.Name, start, err))
		}

		index := int(end / p.chunkSize)
		if last {
			index = constants.LastChunk
		}
		entry, err := p.backend.Save(ctx, path, saveModel(f.Name, path, chunk, index))
		if err != nil {
			return nil, p.failPending(u, fmt.Errorf("failed to upload chunk %d of %s: %w", index, path, err))
		}
		metrics.RecordChunk()

		if last {
			p.forget(u)
			p.finish(u.ID, path, f.Size, true)
			return entry, nil
		}

		progress := u.recordSent(end)
		p.publish(events.EventUploadProgress, u.ID, path, f.Size, progress, true, nil)
	}
}

func saveModel(name, path string, data []byte, chunk int) *models.SaveModel {
	content := base64.StdEncoding.EncodeToString(data)
	return &models.SaveModel{
		Name:    name,
		Path:    path,
		Type:    models.TypeFile,
		Format:  models.FormatBase64,
		Content: &content,
		Chunk:   chunk,
	}
}

func (p *Pipeline) failPending(u *PendingUpload, err error) error {
	p.forget(u)
	return p.fail(u.ID, u.Path, u.Size, true, err)
}

func (p *Pipeline) fail(id, path string, size int64, chunked bool, err error) error {
	status := "failed"
	if IsCancelled(err) {
		status = "cancelled"
		p.logger.Info().Str("path", path).Msg("Upload cancelled")
	} else {
		p.logger.Error().Err(err).Str("path", path).Msg("Upload failed")
	}
	metrics.RecordUpload(chunked, status, 0)
	p.publish(events.EventUploadFailed, id, path, size, 0, chunked, err)
	return err
}

func (p *Pipeline) finish(id, path string, size int64, chunked bool) {
	metrics.RecordUpload(chunked, "success", size)
	p.logger.Info().Str("path", path).Int64("size", size).Bool("chunked", chunked).Msg("Upload finished")
	p.publish(events.EventUploadFinished, id, path, size, 1, chunked, nil)
}

func (p *Pipeline) publish(t events.EventType, id, path string, size int64, progress float64, chunked bool, err error) {
	if p.eventBus == nil {
		return
	}
	p.eventBus.PublishUpload(t, id, path, size, progress, chunked, err)
}
