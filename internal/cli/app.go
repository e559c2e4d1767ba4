package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rescale/notebook-filetree/internal/archive"
	"github.com/rescale/notebook-filetree/internal/commands"
	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/contents/azurestore"
	"github.com/rescale/notebook-filetree/internal/contents/jupyter"
	"github.com/rescale/notebook-filetree/internal/contents/memstore"
	"github.com/rescale/notebook-filetree/internal/contents/s3store"
	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/http"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/render"
	"github.com/rescale/notebook-filetree/internal/state"
	"github.com/rescale/notebook-filetree/internal/tree"
	"github.com/rescale/notebook-filetree/internal/upload"
)

// openBackend builds the content store named in cfg. Tests replace it.
var openBackend = defaultOpenBackend

func defaultOpenBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger) (contents.Backend, error) {
	switch cfg.Server.Backend {
	case config.BackendJupyter, "":
		return jupyter.NewClient(cfg, logger)
	case config.BackendS3:
		return s3store.NewStore(ctx, cfg, logger)
	case config.BackendAzure:
		return azurestore.NewStore(cfg, logger)
	case config.BackendMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, cfg.Server.Backend)
	}
}

// appOptions tunes the pieces that differ between subcommands.
type appOptions struct {
	In           io.Reader
	Out          io.Writer
	RelativeTime bool
	ShowHidden   bool
}

// app is one wired tree session: config, backend, controller, uploads and
// the command registry.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *events.EventBus
	backend  contents.Backend
	tree     *tree.Controller
	table    *render.Table
	recorder *tree.Recorder
	uploads  *upload.Pipeline
	exporter *archive.Exporter
	commands *commands.Registry
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if backendName != "" {
		cfg.Server.Backend = backendName
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if token != "" {
		cfg.Server.Token = token
	}
	if basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires a session without touching the backend. Call load to build
// the first rows.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if !verbose && !debug {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Logging.Level))
	}
	file := logFile
	if file == "" {
		file = cfg.Logging.File
	}
	if http.NeedsProxyPassword(cfg.Proxy) {
		password, err := readSecret(opts.In, os.Stderr, fmt.Sprintf("Proxy password for %s", cfg.Proxy.User))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.Proxy.Password = password
	}

	bus := events.NewEventBus(0)
	logger := logging.New(logging.Options{Console: os.Stderr, File: file, EventBus: bus})

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Close()
		bus.Close()
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Server.Backend, err)
	}
	backend = contents.WithBasePath(backend, cfg.Server.BasePath)

	var confirmer contents.Confirmer = newPromptConfirmer(opts.In, os.Stderr)
	if assumeYes {
		confirmer = contents.AutoConfirmer{Answer: true}
	}

	table := render.NewTable(render.TableOptions{
		Store:        backend,
		RelativeTime: opts.RelativeTime,
		ShowHidden:   opts.ShowHidden,
	})
	recorder := &tree.Recorder{}

	controller := tree.NewController(backend, contents.NewManager(backend), state.NewStore(bus), tree.Options{
		Logger:             logger,
		EventBus:           bus,
		Renderer:           tree.MultiRenderer(table, recorder),
		Confirmer:          confirmer,
		RestoreConcurrency: cfg.Tree.RestoreConcurrency,
	})

	uploadOpts := upload.OptionsFromConfig(cfg)
	uploadOpts.Logger = logger
	uploadOpts.EventBus = bus
	uploadOpts.Confirmer = confirmer
	uploads := upload.NewPipeline(backend, uploadOpts)

	exporter := archive.NewExporter(backend, archive.Options{
		Logger:      logger,
		Concurrency: cfg.Tree.RestoreConcurrency,
	})

	registry := commands.New(commands.Deps{
		Tree:     controller,
		Uploads:  uploads,
		Exporter: exporter,
		Store:    backend,
		Logger:   logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		backend:  backend,
		tree:     controller,
		table:    table,
		recorder: recorder,
		uploads:  uploads,
		exporter: exporter,
		commands: registry,
	}, nil
}

// load builds the root rows.
func (a *app) load(ctx context.Context) error {
	if err := a.tree.Load(ctx); err != nil {
		return fmt.Errorf("failed to list %s: %w", displayRoot(a.cfg), err)
	}
	return nil
}

// Close stops running uploads and releases the logger and event bus.
func (a *app) Close() {
	a.uploads.Dispose()
	a.bus.Close()
	a.logger.Close()
}

func displayRoot(cfg *config.Config) string {
	if cfg.Server.BasePath == "" {
		return "/"
	}
	return cfg.Server.BasePath
}

// openApp is newApp followed by load.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	a, err := newApp(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := a.load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
