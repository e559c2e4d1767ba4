// Package commands is the named-command surface of the file tree. The CLI
// and the HTTP sidecar both dispatch through a Registry.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rescale/notebook-filetree/internal/archive"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/tree"
	"github.com/rescale/notebook-filetree/internal/upload"
)

// Command names.
const (
	Toggle       = "toggle"
	Refresh      = "refresh"
	Rename       = "rename"
	CreateFolder = "createFolder"
	CreateFile   = "createFile"
	Delete       = "delete"
	Download     = "download"
	Upload       = "upload"
	Move         = "move"
	SetSelection = "setSelection"
	Select       = "select"
	SetContext   = "setContext"
	CopyPath     = "copyPath"
	Navigate     = "navigate"
)

var (
	// ErrUnknownCommand is returned by Execute for an unregistered name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingArgument is returned when a required argument is empty.
	ErrMissingArgument = errors.New("missing argument")

	// ErrNoDestination is returned by download when a folder is requested
	// without somewhere to write the zip.
	ErrNoDestination = errors.New("folder download needs a destination")
)

// Args is the argument record every command takes. Each command reads
// only the fields it needs.
type Args struct {
	Path   string `json:"path,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Row    string `json:"row,omitempty"` // row key, an alternative to Path
	Level  int    `json:"level,omitempty"`
	Name   string `json:"name,omitempty"`
	Folder bool   `json:"folder,omitempty"`

	Files []upload.File `json:"-"`
	// Dest receives downloaded bytes. Without it a file download only
	// resolves the URL.
	Dest io.Writer `json:"-"`
}

// Result is what a command reports back.
type Result struct {
	Command string          `json:"command"`
	Path    string          `json:"path,omitempty"`
	URL     string          `json:"url,omitempty"`
	Name    string          `json:"name,omitempty"` // zip file name for folder downloads
	Bytes   int64           `json:"bytes,omitempty"`
	Done    bool            `json:"done"` // false when the user declined
	Entries []*models.Entry `json:"entries,omitempty"`
}

// Command is one named operation.
type Command func(ctx context.Context, args Args) (*Result, error)

// Deps wires a Registry to the engines.
type Deps struct {
	Tree     *tree.Controller
	Uploads  *upload.Pipeline
	Exporter *archive.Exporter
	Store    contents.Store
	Router   *Router
	Logger   *logging.Logger
}

// Registry dispatches named commands.
type Registry struct {
	tree     *tree.Controller
	uploads  *upload.Pipeline
	exporter *archive.Exporter
	store    contents.Store
	router   *Router
	logger   *logging.Logger
	commands map[string]Command
}

// New creates a registry with every command registered.
func New(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Router == nil {
		deps.Router = NewRouter("", "")
	}
	r := &Registry{
		tree:     deps.Tree,
		uploads:  deps.Uploads,
		exporter: deps.Exporter,
		store:    deps.Store,
		router:   deps.Router,
		logger:   deps.Logger,
	}
	r.commands = map[string]Command{
		Toggle:       r.toggle,
		Refresh:      r.refresh,
		Rename:       r.rename,
		CreateFolder: r.createFolder,
		CreateFile:   r.createFile,
		Delete:       r.delete,
		Download:     r.download,
		Upload:       r.upload,
		Move:         r.move,
		SetSelection: r.selectPath,
		Select:       r.selectPath,
		SetContext:   r.setContext,
		CopyPath:     r.copyPath,
		Navigate:     r.navigate,
	}
	return r
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// Execute runs the named command. Cancellations come back as a Result with
// Done unset and a nil error.
func (r *Registry) Execute(ctx context.Context, name string, args Args) (*Result, error) {
	cmd, ok := r.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	start := time.Now()
	res, err := cmd(ctx, args)
	if err != nil && upload.IsCancelled(err) {
		res, err = &Result{}, nil
	}
	metrics.RecordCommand(name, err == nil)

	if err != nil {
		r.logger.Debug().Err(err).Str("command", name).Msg("Command failed")
		return nil, err
	}
	res.Command = name
	r.logger.Debug().
		Str("command", name).
		Str("path", res.Path).
		Bool("done", res.Done).
		Dur("took", time.Since(start)).
		Msg("Command executed")
	return res, nil
}

// path resolves the target of a command: Path, else the decoded Row key,
// else the selection.
func (r *Registry) path(args Args) (string, error) {
	if args.Path != "" {
		return pathutil.Normalize(args.Path), nil
	}
	if args.Row != "" {
		return pathutil.DecodeKey(args.Row)
	}
	if p, ok := r.tree.Selection(); ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: path", ErrMissingArgument)
}

func (r *Registry) toggle(ctx context.Context, args Args) (*Result, error) {
	path, err := r.path(args)
	if err != nil {
		return nil, err
	}
	if err := r.tree.Toggle(ctx, path, args.Level); err != nil {
		return nil, err
	}
	return &Result{Path: path, Done: true}, nil
}

func (r *Registry) refresh(ctx context.Context, _ Args) (*Result, error) {
	if err := r.tree.Refresh(ctx); err != nil {
		return nil, err
	}
	return &Result{Done: true}, nil
}

func (r *Registry) rename(ctx context.Context, args Args) (*Result, error) {
	path, err := r.path(args)
	if err != nil {
		return nil, err
	}
	if args.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingArgument)
	}
	newPath, err := r.tree.Rename(ctx, path, args.Name)
	if err != nil {
		return nil, err
	}
	return &Result{Path: newPath, Done: true}, nil
}

func (r *Registry) move(ctx context.Context, args Args) (*Result, error) {
	if args.From == "" {
		return nil, fmt.Errorf("%w: from", ErrMissingArgument)
	}
	newPath, err := r.tree.Move(ctx, args.From, args.To)
	if err != nil {
		return nil, err
	}
	return &Result{Path: newPath, Done: newPath != ""}, nil
}

func (r *Registry) delete(ctx context.Context, args Args) (*Result, error) {
	path, err := r.path(args)
	if err != nil {
		return nil, err
	}
	done, err := r.tree.Delete(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Result{Path: path, Done: done}, nil
}

func (r *Registry) createFolder(ctx context.Context, args Args) (*Result, error) {
	entry, err := r.tree.CreateFolder(ctx, args.Path)
	if err != nil {
		return nil, err
	}
	return &Result{Path: entry.Path, Done: true, Entries: []*models.Entry{entry}}, nil
}

func (r *Registry) createFile(ctx context.Context, args Args) (*Result, error) {
	entry, err := r.tree.CreateFile(ctx, args.Path, args.Name)
	if err != nil {
		return nil, err
	}
	return &Result{Path: entry.Path, Done: true, Entries: []*models.Entry{entry}}, nil
}

func (r *Registry) upload(ctx context.Context, args Args) (*Result, error) {
	if len(args.Files) == 0 {
		return nil, fmt.Errorf("%w: files", ErrMissingArgument)
	}
	dir := args.Path
	if dir == "" {
		dir = r.tree.TargetDir()
	}

	entries, err := r.uploads.UploadFiles(ctx, args.Files, dir)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, f := range args.Files {
		total += f.Size
	}
	if err := r.tree.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Refresh after upload failed")
	}
	return &Result{Path: pathutil.Normalize(dir), Bytes: total, Done: true, Entries: entries}, nil
}

// download resolves a file to its download URL, streaming it to Dest when
// set. Folders are packed into a zip named after the folder.
func (r *Registry) download(ctx context.Context, args Args) (*Result, error) {
	path, err := r.path(args)
	if err != nil {
		return nil, err
	}

	folder := args.Folder
	if !folder {
		entry, err := r.store.Get(ctx, path, contents.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", path, err)
		}
		folder = entry.IsDir()
	}

	if folder {
		if args.Dest == nil {
			return nil, ErrNoDestination
		}
		stats, err := r.exporter.WriteFolder(ctx, path, args.Dest)
		if err != nil {
			return nil, err
		}
		return &Result{Path: path, Name: archive.ZipName(path), Bytes: stats.Bytes, Done: true}, nil
	}

	url, err := r.store.DownloadURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download url for %s: %w", path, err)
	}
	res := &Result{Path: path, URL: url, Name: pathutil.Base(path), Done: true}
	if args.Dest != nil {
		n, err := contents.Download(ctx, r.store, path, args.Dest)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", path, err)
		}
		res.Bytes = n
	}
	return res, nil
}

func (r *Registry) selectPath(_ context.Context, args Args) (*Result, error) {
	path := pathutil.Normalize(args.Path)
	if args.Row != "" && args.Path == "" {
		p, err := pathutil.DecodeKey(args.Row)
		if err != nil {
			return nil, err
		}
		path = p
	}
	r.tree.Select(path)
	return &Result{Path: path, Done: true}, nil
}

func (r *Registry) setContext(_ context.Context, args Args) (*Result, error) {
	path := pathutil.Normalize(args.Path)
	r.tree.SetContext(path)
	return &Result{Path: path, Done: true}, nil
}

func (r *Registry) copyPath(context.Context, Args) (*Result, error) {
	path, ok := r.tree.CopyPath()
	return &Result{Path: path, Done: ok}, nil
}

// navigate takes a routed front-end URL in Path and reveals the entry it
// points at.
func (r *Registry) navigate(ctx context.Context, args Args) (*Result, error) {
	if args.Path == "" {
		return nil, fmt.Errorf("%w: path", ErrMissingArgument)
	}
	path, _, err := r.router.Match(args.Path)
	if err != nil {
		return nil, err
	}
	if err := r.tree.Navigate(ctx, path); err != nil {
		return nil, err
	}
	return &Result{Path: path, Done: true}, nil
}
