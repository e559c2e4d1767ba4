// Package cli provides the command-line interface for filetree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/version"
)

var (
	// Global flags
	cfgFile     string
	backendName string
	serverURL   string
	token       string
	basePath    string
	logFile     string
	verbose     bool
	debug       bool
	assumeYes   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filetree",
		Short: "Browse and manage a notebook server's files as a tree",
		Long: `filetree ` + version.Version + ` - Built: ` + version.BuildTime + `
Collapsible file tree over a notebook server's contents (or an S3 bucket,
an Azure blob container or an in-memory store).

Examples:
  filetree ls -e docs -e docs/data
  filetree upload results.csv --dir docs/data
  filetree download docs -o docs.zip
  filetree watch --interval 10s
  filetree serve --addr :8090`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Options{Console: os.Stderr, File: logFile})
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Content backend: jupyter, s3, azure or memory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Notebook server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Notebook server token (overrides config)")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", "", "Directory the tree is rooted at (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script for filetree.

QUICK TEST (current session only):
  source <(filetree completion bash)`,
	}
	completionCmd.AddCommand(
		&cobra.Command{
			Use:   "bash",
			Short: "Generate bash completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "zsh",
			Short: "Generate zsh completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "fish",
			Short: "Generate fish completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			},
		},
	)
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newNavigateCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newTouchCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context, cancelled on Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
