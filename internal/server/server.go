// Package server is the HTTP sidecar: it serves the rendered rows, the row
// instruction feed, the command surface and the Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rescale/notebook-filetree/internal/archive"
	"github.com/rescale/notebook-filetree/internal/commands"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/tree"
	"github.com/rescale/notebook-filetree/internal/upload"
	"github.com/rescale/notebook-filetree/internal/version"
)

// Deps holds what the handlers need.
type Deps struct {
	Commands *commands.Registry
	Tree     *tree.Controller
	Uploads  *upload.Pipeline
	Store    contents.Store
	// Recorder must be attached to Tree as (one of) its renderers.
	Recorder *tree.Recorder
	Logger   *logging.Logger
}

// Server wraps the echo instance.
type Server struct {
	echo     *echo.Echo
	commands *commands.Registry
	tree     *tree.Controller
	uploads  *upload.Pipeline
	store    contents.Store
	recorder *tree.Recorder
	logger   *logging.Logger
}

// New creates the sidecar with every route registered.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = &tree.Recorder{}
	}

	s := &Server{
		echo:     echo.New(),
		commands: deps.Commands,
		tree:     deps.Tree,
		uploads:  deps.Uploads,
		store:    deps.Store,
		recorder: deps.Recorder,
		logger:   deps.Logger,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api")
	api.GET("/rows", s.handleRows)
	api.GET("/ops", s.handleOps)
	api.GET("/state", s.handleState)
	api.GET("/uploads", s.handleUploads)
	api.GET("/commands", s.handleCommandNames)
	api.POST("/commands/:name", s.handleCommand)
	api.POST("/upload", s.handleUpload)
	api.GET("/download", s.handleDownload)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP sidecar listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down sidecar: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"rows":    s.tree.Len(),
	})
}

// handleRows returns the visible rows, or every row with ?all=true.
func (s *Server) handleRows(c echo.Context) error {
	rows := s.tree.VisibleRows()
	if all, _ := strconv.ParseBool(c.QueryParam("all")); all {
		rows = s.tree.Rows()
	}
	return c.JSON(http.StatusOK, map[string]any{"rows": rows})
}

type opsResponse struct {
	Ops  []tree.Op `json:"ops"`
	Next int       `json:"next"`
}

// handleOps returns the render instructions after ?since=N. Clients replay
// them in order and poll again with the returned next.
func (s *Server) handleOps(c echo.Context) error {
	since := 0
	if v := c.QueryParam("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return newBadRequest("since must be a non-negative integer", err)
		}
		since = n
	}
	ops, next := s.recorder.Since(since)
	return c.JSON(http.StatusOK, opsResponse{Ops: ops, Next: next})
}

type stateEntry struct {
	Path         string    `json:"path"`
	IsOpen       bool      `json:"open"`
	Loaded       bool      `json:"loaded"`
	LastModified time.Time `json:"last_modified"`
}

func (s *Server) handleState(c echo.Context) error {
	st := s.tree.State()
	var out []stateEntry
	for _, p := range st.Paths() {
		ds, ok := st.Get(p)
		if !ok {
			continue
		}
		out = append(out, stateEntry{Path: p, IsOpen: ds.IsOpen, Loaded: ds.Loaded, LastModified: ds.LastModified})
	}
	return c.JSON(http.StatusOK, map[string]any{"directories": out})
}

func (s *Server) handleUploads(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"pending": s.uploads.Pending()})
}

func (s *Server) handleCommandNames(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"commands": s.commands.Names()})
}

// handleCommand runs a command with a JSON argument record.
func (s *Server) handleCommand(c echo.Context) error {
	name := c.Param("name")
	if !s.commands.Has(name) {
		return toAPIError(fmt.Errorf("%w: %s", commands.ErrUnknownCommand, name))
	}
	switch name {
	case commands.Upload, commands.Download:
		return newBadRequest(fmt.Sprintf("use /api/%s for %s", name, name), nil)
	}

	var args commands.Args
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&args); err != nil {
			return newBadRequest("invalid JSON body", err)
		}
	}
	res, err := s.commands.Execute(c.Request().Context(), name, args)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleUpload takes multipart "file" parts and uploads them into ?dir=.
func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return newBadRequest("invalid multipart body", err)
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		return newBadRequest("no files in request", nil)
	}

	var files []upload.File
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return newBadRequest("failed to open "+h.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, upload.File{Name: h.Filename, Size: h.Size, Data: f})
	}

	res, err := s.commands.Execute(c.Request().Context(), commands.Upload, commands.Args{
		Path:  c.QueryParam("dir"),
		Files: files,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if !res.Done {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// handleDownload streams ?path= as an attachment: files as they are,
// folders as a zip.
func (s *Server) handleDownload(c echo.Context) error {
	path := pathutil.Normalize(c.QueryParam("path"))
	ctx := c.Request().Context()

	entry, err := s.store.Get(ctx, path, contents.GetOptions{})
	if err != nil {
		return err
	}

	name := pathutil.Base(path)
	contentType := echo.MIMEOctetStream
	if entry.IsDir() {
		name = archive.ZipName(path)
		contentType = "application/zip"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	c.Response().Header().Set(echo.HeaderContentType, contentType)

	_, err = s.commands.Execute(ctx, commands.Download, commands.Args{
		Path:   path,
		Folder: entry.IsDir(),
		Dest:   c.Response(),
	})
	return err
}
