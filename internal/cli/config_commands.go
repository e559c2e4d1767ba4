package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/render"
	"github.com/rescale/notebook-filetree/internal/version"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage filetree configuration",
		Long: `Configuration management commands for filetree.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the backend connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// readLine prints prompt and returns the trimmed answer, or def when empty.
func readLine(r *bufio.Reader, w io.Writer, prompt, def string) string {
	if def != "" {
		fmt.Fprintf(w, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w, "%s: ", prompt)
	}
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for filetree.

The configuration is saved to ~/.config/notebook-filetree/filetree.conf
unless --config names another file.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "Filetree Configuration Setup")
			fmt.Fprintln(out, "============================")
			fmt.Fprintln(out)

			reader := bufio.NewReader(cmd.InOrStdin())
			cfg := config.New()

			cfg.Server.Backend = strings.ToLower(readLine(reader, out, "Backend (jupyter, s3, azure, memory)", cfg.Server.Backend))
			switch cfg.Server.Backend {
			case config.BackendJupyter:
				cfg.Server.URL = readLine(reader, out, "Server URL", cfg.Server.URL)
				cfg.Server.Token = readLine(reader, out, "Token", "")
			case config.BackendS3:
				cfg.S3.Bucket = readLine(reader, out, "S3 bucket", "")
				cfg.S3.Region = readLine(reader, out, "S3 region", "us-east-1")
				cfg.S3.Prefix = readLine(reader, out, "Key prefix", "")
			case config.BackendAzure:
				cfg.Azure.SASURL = readLine(reader, out, "Container SAS URL (leave empty for account/key)", "")
				if cfg.Azure.SASURL == "" {
					cfg.Azure.Account = readLine(reader, out, "Storage account", "")
					cfg.Azure.Key = readLine(reader, out, "Account key", "")
					cfg.Azure.Container = readLine(reader, out, "Container", "")
				}
				cfg.Azure.Prefix = readLine(reader, out, "Blob prefix", "")
			}
			cfg.Server.BasePath = readLine(reader, out, "Base path", "")

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Tree Settings (press Enter for defaults)")
			fmt.Fprintln(out, "----------------------------------------")
			if v, err := time.ParseDuration(readLine(reader, out, "Poll interval (0s disables)", cfg.Tree.PollInterval.String())); err == nil {
				cfg.Tree.PollInterval = v
			}
			if v, err := strconv.Atoi(readLine(reader, out, "Restore concurrency", strconv.Itoa(cfg.Tree.RestoreConcurrency))); err == nil && v > 0 {
				cfg.Tree.RestoreConcurrency = v
			}

			fmt.Fprintln(out)
			if answer := strings.ToLower(readLine(reader, out, "Configure proxy? [y/N]", "")); answer == "y" || answer == "yes" {
				cfg.Proxy.Mode = strings.ToLower(readLine(reader, out, "Proxy mode (no-proxy, system, basic, ntlm)", "system"))
				if cfg.Proxy.Mode == "basic" || cfg.Proxy.Mode == "ntlm" {
					cfg.Proxy.Host = readLine(reader, out, "Proxy host", "")
					if v, err := strconv.Atoi(readLine(reader, out, "Proxy port", strconv.Itoa(cfg.Proxy.Port))); err == nil {
						cfg.Proxy.Port = v
					}
					cfg.Proxy.User = readLine(reader, out, "Proxy user", "")
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			GetLogger().Info().Str("path", path).Msg("Configuration initialized")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

func secret(s string) string {
	if s == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set (%d chars)>", len(s))
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file
  2. Environment variables (FILETREE_URL, FILETREE_TOKEN)
  3. Command-line flags (--backend, --url, --token, --base-path)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Server:")
			fmt.Fprintf(out, "  Backend:   %s\n", cfg.Server.Backend)
			switch cfg.Server.Backend {
			case config.BackendJupyter:
				fmt.Fprintf(out, "  URL:       %s\n", cfg.Server.URL)
				fmt.Fprintf(out, "  Token:     %s\n", secret(cfg.Server.Token))
			case config.BackendS3:
				fmt.Fprintf(out, "  Bucket:    %s\n", cfg.S3.Bucket)
				fmt.Fprintf(out, "  Region:    %s\n", cfg.S3.Region)
				fmt.Fprintf(out, "  Prefix:    %s\n", cfg.S3.Prefix)
			case config.BackendAzure:
				fmt.Fprintf(out, "  Account:   %s\n", cfg.Azure.Account)
				fmt.Fprintf(out, "  Container: %s\n", cfg.Azure.Container)
				fmt.Fprintf(out, "  SAS URL:   %s\n", secret(cfg.Azure.SASURL))
				fmt.Fprintf(out, "  Prefix:    %s\n", cfg.Azure.Prefix)
			}
			fmt.Fprintf(out, "  Base path: %s\n", displayRoot(cfg))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Upload:")
			fmt.Fprintf(out, "  Chunk size:           %s\n", render.FileSize(&cfg.Upload.ChunkSize))
			fmt.Fprintf(out, "  Large file threshold: %s\n", render.FileSize(&cfg.Upload.LargeFileThreshold))
			fmt.Fprintf(out, "  Chunked:              %s\n", cfg.Upload.Chunked)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Tree:")
			fmt.Fprintf(out, "  Poll interval:       %s\n", cfg.Tree.PollInterval)
			fmt.Fprintf(out, "  Restore concurrency: %d\n", cfg.Tree.RestoreConcurrency)
			fmt.Fprintf(out, "  Rate limit:          %.1f req/s\n", cfg.Tree.RateLimit)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Proxy:")
			fmt.Fprintf(out, "  Mode: %s\n", cfg.Proxy.Mode)
			if cfg.Proxy.Host != "" {
				fmt.Fprintf(out, "  Host: %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
			}
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the backend connection",
		Long:  `List the tree root to check that the configured backend is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing %s backend...\n", a.cfg.Server.Backend)

			start := time.Now()
			root, err := a.backend.Get(ctx, "", contents.GetOptions{Content: true, Type: models.TypeDirectory})
			if err != nil {
				fmt.Fprintf(out, "✗ Connection failed: %v\n", err)
				return err
			}
			chunked, err := a.backend.SupportsChunking(ctx)
			if err != nil {
				a.logger.Debug().Err(err).Msg("Chunking probe failed")
			}

			fmt.Fprintf(out, "✓ Connected in %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "  Root:            %s\n", render.Count(len(root.Children), "item"))
			fmt.Fprintf(out, "  Chunked uploads: %v\n", chunked)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "(file does not exist; run 'filetree config init')")
			}
			return nil
		},
	}
}

// newVersionCmd creates the 'version' command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "filetree %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
