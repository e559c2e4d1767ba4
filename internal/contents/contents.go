// Package contents defines the remote content store the tree and upload
// engines run against, and the document manager built on top of it.
package contents

import (
	"context"
	"io"

	"github.com/rescale/notebook-filetree/internal/models"
)

// GetOptions selects what a Get returns.
type GetOptions struct {
	// Content requests the directory listing or file payload.
	Content bool
	// Format is the payload format for files ("text" or "base64"); empty
	// lets the server decide.
	Format string
	// Type hints the expected entry type; empty lets the server decide.
	Type models.EntryType
}

// Store is the minimal content store: fetch, save and download URLs.
type Store interface {
	// Get returns metadata for path, with children or payload when
	// opts.Content is set.
	Get(ctx context.Context, path string, opts GetOptions) (*models.Entry, error)

	// Save writes model at path. Chunked uploads call Save once per chunk.
	Save(ctx context.Context, path string, model *models.SaveModel) (*models.Entry, error)

	// DownloadURL returns a URL the file at path can be fetched from.
	DownloadURL(ctx context.Context, path string) (string, error)
}

// Backend is a complete content store.
type Backend interface {
	Store

	Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error)
	Delete(ctx context.Context, path string) error

	// NewUntitled creates an untitled file or directory inside dir and
	// returns it.
	NewUntitled(ctx context.Context, dir string, typ models.EntryType) (*models.Entry, error)

	// SupportsChunking reports whether Save accepts chunked models.
	SupportsChunking(ctx context.Context) (bool, error)
}

// Downloader is implemented by backends that can stream a file body.
type Downloader interface {
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
}

// DocumentManager is the name-validating façade used by the tree.
type DocumentManager interface {
	IsValidName(name string) bool
	Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error)
	CreateDirectory(ctx context.Context, dir string) (*models.Entry, error)
	CreateFile(ctx context.Context, path string) (*models.Entry, error)
	DeleteFile(ctx context.Context, path string) error
}

// Confirmer asks the user before destructive or expensive operations.
// A false answer with a nil error means the user declined.
type Confirmer interface {
	ConfirmLargeUpload(ctx context.Context, name string, size int64) (bool, error)
	ConfirmOverwrite(ctx context.Context, path string) (bool, error)
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// AutoConfirmer answers every question with Answer. The CLI uses it for
// --yes and tests use it to script decisions.
type AutoConfirmer struct {
	Answer bool
}

func (a AutoConfirmer) ConfirmLargeUpload(context.Context, string, int64) (bool, error) {
	return a.Answer, nil
}

func (a AutoConfirmer) ConfirmOverwrite(context.Context, string) (bool, error) {
	return a.Answer, nil
}

func (a AutoConfirmer) Confirm(context.Context, string, string) (bool, error) {
	return a.Answer, nil
}
