package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/server"
	"github.com/rescale/notebook-filetree/internal/tree"
)

func newServeCmd() *cobra.Command {
	var addr string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree, its row feed and the command surface over HTTP",
		Long: `Serve the tree over HTTP.

Endpoints:
  GET  /health                 liveness and row count
  GET  /metrics                Prometheus metrics
  GET  /api/rows[?all=true]    rendered rows
  GET  /api/ops?since=N        render instructions after N
  GET  /api/state              directory open/loaded state
  GET  /api/uploads            uploads in flight
  GET  /api/commands           command names
  POST /api/commands/:name     run a command with a JSON body
  POST /api/upload?dir=D       multipart upload (field "file")
  GET  /api/download?path=P    file, or folder as zip

Confirmations are answered yes; the HTTP caller is expected to ask first.

Examples:
  filetree serve --addr :8090
  filetree serve --backend s3 --poll 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// There is no terminal to answer prompts on.
			assumeYes = true

			ctx := GetContext()
			a, err := openApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			if interval == 0 {
				interval = a.cfg.Tree.PollInterval
			}

			srv := server.New(server.Deps{
				Commands: a.commands,
				Tree:     a.tree,
				Uploads:  a.uploads,
				Store:    a.backend,
				Recorder: a.recorder,
				Logger:   a.logger,
			})

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(ctx, addr)
			})
			if interval > 0 {
				g.Go(func() error {
					err := tree.NewPoller(a.tree, interval).Run(ctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
			}
			if a.cfg.Metrics.Addr != "" && a.cfg.Metrics.Addr != addr {
				g.Go(func() error {
					return serveMetrics(ctx, a.cfg.Metrics.Addr)
				})
			}

			a.logger.Info().Str("addr", addr).Dur("poll", interval).Msg("Serving tree")
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8090", "Listen address")
	cmd.Flags().DurationVar(&interval, "poll", 0, "Background refresh interval (default: [tree] poll_interval; 0 disables)")
	return cmd
}

// serveMetrics runs a bare Prometheus listener on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
