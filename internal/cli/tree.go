package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/notebook-filetree/internal/commands"
	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/tree"
)

// expandAll opens each directory, and every directory above it.
func expandAll(ctx context.Context, a *app, paths []string) error {
	for _, p := range paths {
		if err := a.tree.Navigate(ctx, p); err != nil {
			return fmt.Errorf("failed to expand %s: %w", displayPath(p), err)
		}
	}
	return nil
}

func newLsCmd() *cobra.Command {
	var expand []string
	var all, relative bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "Print the tree",
		Long: `Print the tree as a table of name, size, modified time and permission.

Directories are collapsed unless named with --expand. Expanding a nested
directory opens every directory above it as well.

Examples:
  filetree ls
  filetree ls -e docs -e notebooks/2024 --relative`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := openApp(ctx, appOptions{
				In:           cmd.InOrStdin(),
				Out:          cmd.OutOrStdout(),
				RelativeTime: relative,
				ShowHidden:   all,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := expandAll(ctx, a, expand); err != nil {
				return err
			}
			return a.table.Write(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&expand, "expand", "e", nil, "Directory to expand (repeatable)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include rows inside collapsed directories")
	cmd.Flags().BoolVar(&relative, "relative", false, "Show modified times as \"x ago\"")
	return cmd
}

func newNavigateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "navigate <url>",
		Short: "Reveal the file a notebook URL points at",
		Long: `Reveal the file a notebook URL points at: every directory on the way
is expanded and the file is selected.

Examples:
  filetree navigate http://localhost:8888/lab/tree/docs/a.ipynb
  filetree navigate /lab/workspaces/auto-x/tree/docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := openApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.commands.Execute(ctx, commands.Navigate, commands.Args{Path: args[0]})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Selected %s\n\n", displayPath(res.Path))
			return a.table.Write(ctx, out)
		},
	}
}

func newWatchCmd() *cobra.Command {
	var expand []string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the tree on an interval and reprint it on every change",
		Long: `Refresh the tree on an interval and reprint it after every refresh.
Open directories stay open across refreshes. Press Ctrl+C to stop.

Examples:
  filetree watch
  filetree watch -e docs --interval 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := openApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := expandAll(ctx, a, expand); err != nil {
				return err
			}
			if interval == 0 {
				interval = a.cfg.Tree.PollInterval
			}
			if interval <= 0 {
				interval = 10 * time.Second
			}

			return watch(ctx, a, interval, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&expand, "expand", "e", nil, "Directory to expand (repeatable)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default: [tree] poll_interval, or 10s)")
	return cmd
}

// watch prints the table, then reprints it after each refresh until ctx is
// cancelled.
func watch(ctx context.Context, a *app, interval time.Duration, out io.Writer) error {
	if err := a.table.Write(ctx, out); err != nil {
		return err
	}

	refreshed := a.bus.Subscribe(events.EventTreeRefreshed)
	defer a.bus.Unsubscribe(events.EventTreeRefreshed, refreshed)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- tree.NewPoller(a.tree, interval).Run(ctx)
	}()

	for {
		select {
		case err := <-pollErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case e, ok := <-refreshed:
			if !ok {
				return nil
			}
			ev, _ := e.(*events.TreeEvent)
			fmt.Fprintf(out, "\n--- %s ---\n", e.Timestamp().Format(time.TimeOnly))
			if ev != nil {
				a.logger.Debug().Int("rows", ev.Rows).Msg("Tree refreshed")
			}
			if err := a.table.Write(ctx, out); err != nil {
				return err
			}
		}
	}
}
