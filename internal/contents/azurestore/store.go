// Package azurestore is a contents.Backend over an Azure blob container.
// Directories are virtual ("/" delimited names) and empty folders are kept
// as zero-length blobs flagged with hdi_isfolder metadata. Chunked saves
// stage one block per chunk and commit the block list on the last chunk.
package azurestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/http"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

const backendName = "azure"

type blockUpload struct {
	blockIDs []string
	written  int64
}

// Store is an Azure-backed content tree.
type Store struct {
	container Container
	prefix    string
	logger    *logging.Logger
	retry     http.RetryConfig

	mu      sync.Mutex
	uploads map[string]*blockUpload
}

var _ contents.Backend = (*Store)(nil)
var _ contents.Downloader = (*Store)(nil)

// NewStore connects to the container named in the [azure] config.
func NewStore(cfg *config.Config, logger *logging.Logger) (*Store, error) {
	c, err := NewContainer(cfg)
	if err != nil {
		return nil, err
	}
	return New(c, cfg.Azure.Prefix, logger), nil
}

// New creates a store over c. prefix is prepended to every blob name.
func New(c Container, prefix string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		container: c,
		prefix:    pathutil.Normalize(prefix),
		logger:    logger,
		retry:     http.DefaultRetryConfig(),
		uploads:   make(map[string]*blockUpload),
	}
	s.retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		s.logger.Warn().Err(err).Int("attempt", attempt).Stringer("type", errType).Msg("Retrying Azure request")
	}
	return s
}

// SetRetryConfig replaces the retry policy for reads.
func (s *Store) SetRetryConfig(cfg http.RetryConfig) {
	s.retry = cfg
}

func (s *Store) blobName(path string) string {
	return pathutil.Join(s.prefix, path)
}

func (s *Store) dirPrefix(path string) string {
	name := s.blobName(path)
	if name == "" {
		return ""
	}
	return name + "/"
}

// blockID returns the n-th block ID. IDs of one blob must share a length.
func blockID(n int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("chunk-%06d", n)))
}

func statusOf(err error) int {
	if err == nil {
		return nethttp.StatusOK
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nethttp.StatusNotFound
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	var sc http.StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func toStatusError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *contents.StatusError
	if errors.As(err, &se) {
		return err
	}
	if code := statusOf(err); code != 0 {
		return &contents.StatusError{Op: op, Path: path, Code: code, Message: err.Error()}
	}
	return fmt.Errorf("failed to %s %s: %w", op, path, err)
}

func (s *Store) call(ctx context.Context, op, path string, retry bool, fn func() error) error {
	attempt := func() error {
		start := time.Now()
		err := fn()
		metrics.RecordContentsRequest(backendName, op, statusOf(err), time.Since(start))
		return toStatusError(op, path, err)
	}
	if !retry {
		return attempt()
	}
	return http.ExecuteWithRetry(ctx, s.retry, attempt)
}

func (s *Store) properties(ctx context.Context, path string) (BlobInfo, error) {
	var info BlobInfo
	err := s.call(ctx, "get", path, true, func() error {
		var err error
		info, err = s.container.Properties(ctx, s.blobName(path))
		return err
	})
	return info, err
}

func (s *Store) list(ctx context.Context, path, prefix string, delimited bool) ([]string, []BlobInfo, error) {
	var prefixes []string
	var blobs []BlobInfo
	err := s.call(ctx, "list", path, true, func() error {
		var err error
		prefixes, blobs, err = s.container.List(ctx, prefix, delimited)
		return err
	})
	return prefixes, blobs, err
}

func fileEntry(path string, size int64, modified time.Time) models.Entry {
	return models.Entry{
		Name:         pathutil.Base(path),
		Path:         path,
		Type:         contents.TypeForPath(path),
		Writable:     true,
		Created:      modified,
		LastModified: modified,
		Size:         &size,
	}
}

func dirEntry(path string, modified time.Time) models.Entry {
	return models.Entry{
		Name:         pathutil.Base(path),
		Path:         path,
		Type:         models.TypeDirectory,
		Writable:     true,
		Created:      modified,
		LastModified: modified,
	}
}

// stat resolves path to a file or directory entry without content.
func (s *Store) stat(ctx context.Context, path string) (*models.Entry, error) {
	if path == "" {
		entry := dirEntry("", time.Time{})
		return &entry, nil
	}

	info, err := s.properties(ctx, path)
	if err == nil {
		var entry models.Entry
		if info.IsDir {
			entry = dirEntry(path, info.Modified)
		} else {
			entry = fileEntry(path, info.Size, info.Modified)
		}
		return &entry, nil
	}
	if !contents.IsNotFound(err) {
		return nil, err
	}

	prefixes, blobs, err := s.list(ctx, path, s.dirPrefix(path), true)
	if err != nil {
		return nil, err
	}
	if len(prefixes) == 0 && len(blobs) == 0 {
		return nil, &contents.StatusError{Op: "get", Path: path, Code: nethttp.StatusNotFound}
	}
	entry := dirEntry(path, time.Time{})
	return &entry, nil
}

// Get implements contents.Store.
func (s *Store) Get(ctx context.Context, path string, opts contents.GetOptions) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	entry, err := s.stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if !opts.Content {
		return entry, nil
	}

	if !entry.IsDir() {
		var buf bytes.Buffer
		if _, err := s.Download(ctx, path, &buf); err != nil {
			return nil, err
		}
		contents.SetPayload(entry, buf.Bytes(), opts.Format)
		return entry, nil
	}

	prefix := s.dirPrefix(path)
	prefixes, blobs, err := s.list(ctx, path, prefix, true)
	if err != nil {
		return nil, err
	}

	entry.HasContent = true
	entry.Format = models.FormatJSON
	seen := make(map[string]bool)
	for _, p := range prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		entry.Children = append(entry.Children, dirEntry(pathutil.Join(path, name), time.Time{}))
	}
	for _, b := range blobs {
		name := strings.TrimPrefix(b.Name, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if b.IsDir {
			if !seen[name] {
				seen[name] = true
				entry.Children = append(entry.Children, dirEntry(pathutil.Join(path, name), b.Modified))
			}
			continue
		}
		child := fileEntry(pathutil.Join(path, name), b.Size, b.Modified)
		entry.Children = append(entry.Children, child)
		if child.LastModified.After(entry.LastModified) {
			entry.LastModified = child.LastModified
		}
	}
	if entry.Children == nil {
		entry.Children = []models.Entry{}
	}
	return entry, nil
}

func (s *Store) upload(ctx context.Context, op, path, name string, data []byte, folder bool) error {
	return s.call(ctx, op, path, false, func() error {
		return s.container.Upload(ctx, name, data, folder)
	})
}

// Save implements contents.Store.
func (s *Store) Save(ctx context.Context, path string, model *models.SaveModel) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	if path == "" {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: nethttp.StatusBadRequest, Message: "cannot save root"}
	}

	if model.Type == models.TypeDirectory {
		if err := s.upload(ctx, "save", path, s.blobName(path), nil, true); err != nil {
			return nil, err
		}
		entry := dirEntry(path, time.Now().UTC())
		return &entry, nil
	}

	data, err := contents.DecodeSaveContent(model)
	if err != nil {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: nethttp.StatusBadRequest, Message: err.Error()}
	}

	if model.IsChunk() {
		return s.saveChunk(ctx, path, model.Chunk, data)
	}

	if err := s.upload(ctx, "save", path, s.blobName(path), data, false); err != nil {
		return nil, err
	}
	entry := fileEntry(path, int64(len(data)), time.Now().UTC())
	return &entry, nil
}

func (s *Store) saveChunk(ctx context.Context, path string, chunk int, data []byte) (*models.Entry, error) {
	last := chunk == constants.LastChunk

	s.mu.Lock()
	up := s.uploads[path]
	if chunk == 1 {
		up = &blockUpload{}
		s.uploads[path] = up
	}
	s.mu.Unlock()

	if up == nil {
		if !last {
			return nil, &contents.StatusError{Op: "save", Path: path, Code: nethttp.StatusBadRequest, Message: fmt.Sprintf("chunk %d without an upload in progress", chunk)}
		}
		if err := s.upload(ctx, "save", path, s.blobName(path), data, false); err != nil {
			return nil, err
		}
		entry := fileEntry(path, int64(len(data)), time.Now().UTC())
		return &entry, nil
	}

	id := blockID(len(up.blockIDs))
	err := s.call(ctx, "save", path, false, func() error {
		return s.container.StageBlock(ctx, s.blobName(path), id, data)
	})
	if err != nil {
		// Staged blocks are never committed and expire on the service side.
		s.forget(path)
		return nil, err
	}
	up.blockIDs = append(up.blockIDs, id)
	up.written += int64(len(data))

	if !last {
		entry := fileEntry(path, up.written, time.Now().UTC())
		return &entry, nil
	}

	s.forget(path)
	err = s.call(ctx, "save", path, false, func() error {
		return s.container.CommitBlockList(ctx, s.blobName(path), up.blockIDs)
	})
	if err != nil {
		return nil, err
	}
	entry := fileEntry(path, up.written, time.Now().UTC())
	return &entry, nil
}

func (s *Store) forget(path string) {
	s.mu.Lock()
	delete(s.uploads, path)
	s.mu.Unlock()
}

func (s *Store) deleteBlob(ctx context.Context, path, name string) error {
	return s.call(ctx, "delete", path, false, func() error {
		return s.container.Delete(ctx, name)
	})
}

// copyBlob copies through memory; the service-side copy is asynchronous
// and needs a source URL the SAS token may not cover.
func (s *Store) copyBlob(ctx context.Context, path, src, dst string) error {
	var buf bytes.Buffer
	err := s.call(ctx, "rename", path, true, func() error {
		buf.Reset()
		_, err := s.container.Download(ctx, src, &buf)
		return err
	})
	if err != nil {
		return err
	}
	return s.upload(ctx, "rename", path, dst, buf.Bytes(), false)
}

// Rename implements contents.Backend as copy then delete.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error) {
	oldPath, newPath = pathutil.Normalize(oldPath), pathutil.Normalize(newPath)
	if oldPath == "" {
		return nil, &contents.StatusError{Op: "rename", Path: oldPath, Code: nethttp.StatusForbidden, Message: "cannot rename root"}
	}
	if pathutil.IsDescendant(newPath, oldPath) {
		return nil, &contents.StatusError{Op: "rename", Path: oldPath, Code: nethttp.StatusBadRequest, Message: "cannot move a directory into itself"}
	}

	if _, err := s.stat(ctx, newPath); err == nil {
		return nil, &contents.StatusError{Op: "rename", Path: newPath, Code: nethttp.StatusConflict, Message: "file already exists"}
	} else if !contents.IsNotFound(err) {
		return nil, err
	}

	src, err := s.stat(ctx, oldPath)
	if err != nil {
		return nil, err
	}

	if !src.IsDir() {
		if err := s.copyBlob(ctx, oldPath, s.blobName(oldPath), s.blobName(newPath)); err != nil {
			return nil, err
		}
		if err := s.deleteBlob(ctx, oldPath, s.blobName(oldPath)); err != nil {
			return nil, err
		}
		return s.stat(ctx, newPath)
	}

	oldPrefix, newPrefix := s.dirPrefix(oldPath), s.dirPrefix(newPath)
	_, blobs, err := s.list(ctx, oldPath, oldPrefix, false)
	if err != nil {
		return nil, err
	}
	for _, b := range blobs {
		dst := newPrefix + strings.TrimPrefix(b.Name, oldPrefix)
		if b.IsDir {
			err = s.upload(ctx, "rename", oldPath, dst, nil, true)
		} else {
			err = s.copyBlob(ctx, oldPath, b.Name, dst)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := s.upload(ctx, "rename", newPath, s.blobName(newPath), nil, true); err != nil {
		return nil, err
	}
	if err := s.removeTree(ctx, oldPath, blobs); err != nil {
		return nil, err
	}
	return s.stat(ctx, newPath)
}

// removeTree deletes the listed blobs and the directory's own marker.
func (s *Store) removeTree(ctx context.Context, path string, blobs []BlobInfo) error {
	for _, b := range blobs {
		if err := s.deleteBlob(ctx, path, b.Name); err != nil {
			return err
		}
	}
	if err := s.deleteBlob(ctx, path, s.blobName(path)); err != nil && !contents.IsNotFound(err) {
		return err
	}
	return nil
}

// Delete implements contents.Backend. Directories are removed recursively.
func (s *Store) Delete(ctx context.Context, path string) error {
	path = pathutil.Normalize(path)
	if path == "" {
		return &contents.StatusError{Op: "delete", Path: path, Code: nethttp.StatusForbidden, Message: "cannot delete root"}
	}

	entry, err := s.stat(ctx, path)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return s.deleteBlob(ctx, path, s.blobName(path))
	}

	_, blobs, err := s.list(ctx, path, s.dirPrefix(path), false)
	if err != nil {
		return err
	}
	return s.removeTree(ctx, path, blobs)
}

// NewUntitled implements contents.Backend.
func (s *Store) NewUntitled(ctx context.Context, dir string, typ models.EntryType) (*models.Entry, error) {
	dir = pathutil.Normalize(dir)
	parent, err := s.stat(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, &contents.StatusError{Op: "new", Path: dir, Code: nethttp.StatusBadRequest, Message: "not a directory"}
	}

	for i := 0; ; i++ {
		path := pathutil.Join(dir, contents.UntitledName(typ, i))
		_, err := s.stat(ctx, path)
		if err == nil {
			continue
		}
		if !contents.IsNotFound(err) {
			return nil, err
		}
		if typ == models.TypeDirectory {
			return s.Save(ctx, path, &models.SaveModel{Type: models.TypeDirectory})
		}
		empty := ""
		return s.Save(ctx, path, &models.SaveModel{Type: typ, Format: models.FormatText, Content: &empty})
	}
}

// SupportsChunking implements contents.Backend. Block blobs always accept
// staged blocks.
func (s *Store) SupportsChunking(context.Context) (bool, error) {
	return true, nil
}

// DownloadURL implements contents.Store.
func (s *Store) DownloadURL(_ context.Context, path string) (string, error) {
	u, err := s.container.DownloadURL(s.blobName(path))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", path, err)
	}
	return u, nil
}

// Download implements contents.Downloader. The body is streamed straight
// into w, so it is not retried.
func (s *Store) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	path = pathutil.Normalize(path)
	var n int64
	err := s.call(ctx, "download", path, false, func() error {
		var err error
		n, err = s.container.Download(ctx, s.blobName(path), w)
		return err
	})
	return n, err
}
