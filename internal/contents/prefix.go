package contents

import (
	"context"
	"io"

	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

// Prefixed roots a Backend at a base path: callers use tree paths, the
// backend sees base/path, and returned entries carry tree paths again.
type Prefixed struct {
	backend Backend
	base    string
}

// WithBasePath returns backend rooted at base. An empty base returns backend.
func WithBasePath(backend Backend, base string) Backend {
	base = pathutil.Normalize(base)
	if base == "" {
		return backend
	}
	return &Prefixed{backend: backend, base: base}
}

func (p *Prefixed) server(path string) string {
	return pathutil.Join(p.base, path)
}

func (p *Prefixed) strip(e *models.Entry) *models.Entry {
	if e == nil {
		return nil
	}
	if rel, ok := pathutil.Rebase(e.Path, p.base, ""); ok {
		e.Path = rel
	}
	for i := range e.Children {
		p.strip(&e.Children[i])
	}
	return e
}

func (p *Prefixed) Get(ctx context.Context, path string, opts GetOptions) (*models.Entry, error) {
	e, err := p.backend.Get(ctx, p.server(path), opts)
	return p.strip(e), err
}

func (p *Prefixed) Save(ctx context.Context, path string, model *models.SaveModel) (*models.Entry, error) {
	m := *model
	m.Path = p.server(path)
	e, err := p.backend.Save(ctx, p.server(path), &m)
	return p.strip(e), err
}

func (p *Prefixed) DownloadURL(ctx context.Context, path string) (string, error) {
	return p.backend.DownloadURL(ctx, p.server(path))
}

func (p *Prefixed) Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error) {
	e, err := p.backend.Rename(ctx, p.server(oldPath), p.server(newPath))
	return p.strip(e), err
}

func (p *Prefixed) Delete(ctx context.Context, path string) error {
	return p.backend.Delete(ctx, p.server(path))
}

func (p *Prefixed) NewUntitled(ctx context.Context, dir string, typ models.EntryType) (*models.Entry, error) {
	e, err := p.backend.NewUntitled(ctx, p.server(dir), typ)
	return p.strip(e), err
}

func (p *Prefixed) SupportsChunking(ctx context.Context) (bool, error) {
	return p.backend.SupportsChunking(ctx)
}

// Download streams through the wrapped backend when it is a Downloader.
func (p *Prefixed) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	return Download(ctx, p.backend, p.server(path), w)
}
