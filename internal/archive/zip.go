// Package archive packs a remote folder into a zip file.
//
// The folder is walked as a task tree: every directory starts a task per
// child, all sharing one cancellable context. A failing task does not stop
// its siblings; every failure is collected and reported together.
package archive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"

	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

// Stats summarizes a finished export.
type Stats struct {
	Files       int
	Directories int
	Bytes       int64
}

// Options configures an Exporter.
type Options struct {
	Logger *logging.Logger
	// Concurrency caps the number of store requests in flight.
	Concurrency int
}

// Exporter builds zip archives of folders in a content store.
type Exporter struct {
	store  contents.Store
	logger *logging.Logger
	sem    chan struct{}
}

// NewExporter creates an exporter reading from store.
func NewExporter(store contents.Store, opts Options) *Exporter {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = constants.DefaultRestoreConcurrency
	}
	return &Exporter{
		store:  store,
		logger: opts.Logger,
		sem:    make(chan struct{}, opts.Concurrency),
	}
}

// ZipName returns the file name a folder is saved under.
func ZipName(path string) string {
	base := pathutil.Base(path)
	if base == "" {
		base = "files"
	}
	return base + ".zip"
}

type task struct {
	path     string // store path
	name     string // zip path
	isDir    bool
	modified time.Time
	data     []byte
	children []*task
}

// WriteFolder writes a zip of the folder at path to w. Entries sit under a
// top-level folder named after path. Nothing is written when any part of
// the folder could not be read.
func (e *Exporter) WriteFolder(ctx context.Context, path string, w io.Writer) (Stats, error) {
	path = pathutil.Normalize(path)
	top := pathutil.Base(path)
	if top == "" {
		top = "files"
	}

	root := &task{path: path, name: top, isDir: true}
	if err := e.collect(ctx, root); err != nil {
		return Stats{}, fmt.Errorf("failed to export %s: %w", displayPath(path), err)
	}

	var stats Stats
	zw := zip.NewWriter(w)
	if err := writeTask(zw, root, &stats); err != nil {
		zw.Close()
		return stats, fmt.Errorf("failed to write zip for %s: %w", displayPath(path), err)
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish zip for %s: %w", displayPath(path), err)
	}

	e.logger.Info().
		Str("path", displayPath(path)).
		Int("files", stats.Files).
		Int("directories", stats.Directories).
		Int64("bytes", stats.Bytes).
		Msg("Folder exported")
	return stats, nil
}

// collect fills the task tree below root.
func (e *Exporter) collect(ctx context.Context, root *task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	fail := func(err error) {
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	var visit func(t *task)
	visit = func(t *task) {
		defer wg.Done()

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			fail(fmt.Errorf("%s: %w", t.path, ctx.Err()))
			return
		}
		err := e.load(ctx, t)
		<-e.sem

		if !t.isDir {
			metrics.RecordArchiveFile(err == nil)
		}
		if err != nil {
			fail(err)
			return
		}
		for _, c := range t.children {
			wg.Add(1)
			go visit(c)
		}
	}

	wg.Add(1)
	visit(root)
	wg.Wait()
	return errs
}

// load fetches one node: a listing for directories, the payload for files.
func (e *Exporter) load(ctx context.Context, t *task) error {
	if !t.isDir {
		data, err := contents.ReadFile(ctx, e.store, t.path)
		if err != nil {
			return err
		}
		t.data = data
		return nil
	}

	entry, err := e.store.Get(ctx, t.path, contents.GetOptions{Content: true, Type: models.TypeDirectory})
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", displayPath(t.path), err)
	}
	if !entry.IsDir() {
		return fmt.Errorf("%s is not a directory", displayPath(t.path))
	}
	t.modified = entry.LastModified
	for _, c := range entry.Children {
		t.children = append(t.children, &task{
			path:     pathutil.Join(t.path, c.Name),
			name:     t.name + "/" + c.Name,
			isDir:    c.IsDir(),
			modified: c.LastModified,
		})
	}
	sort.Slice(t.children, func(i, j int) bool {
		return t.children[i].name < t.children[j].name
	})
	return nil
}

// writeTask writes t and its subtree depth-first.
func writeTask(zw *zip.Writer, t *task, stats *Stats) error {
	if t.isDir {
		hdr := &zip.FileHeader{Name: t.name + "/", Method: zip.Store, Modified: t.modified}
		if _, err := zw.CreateHeader(hdr); err != nil {
			return err
		}
		stats.Directories++
		for _, c := range t.children {
			if err := writeTask(zw, c, stats); err != nil {
				return err
			}
		}
		return nil
	}

	hdr := &zip.FileHeader{Name: t.name, Method: zip.Deflate, Modified: t.modified}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := fw.Write(t.data); err != nil {
		return err
	}
	stats.Files++
	stats.Bytes += int64(len(t.data))
	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
