package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rescale/notebook-filetree/internal/archive"
	"github.com/rescale/notebook-filetree/internal/commands"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/diskspace"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/progress"
	"github.com/rescale/notebook-filetree/internal/upload"
	"github.com/rescale/notebook-filetree/internal/validation"
)

// expandGlobPatterns expands shell-style patterns into a deduplicated list
// of absolute paths. Patterns without glob characters are kept as-is.
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expandedFiles []string
	seenFiles := make(map[string]bool)

	add := func(p string) error {
		absPath, err := pathutil.ResolveAbsolutePath(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seenFiles[absPath] {
			expandedFiles = append(expandedFiles, absPath)
			seenFiles[absPath] = true
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, match := range matches {
			if err := add(match); err != nil {
				return nil, err
			}
		}
	}

	return expandedFiles, nil
}

// openLocalFiles opens every path for reading. The caller closes the
// returned files.
func openLocalFiles(paths []string) ([]upload.File, []*os.File, error) {
	var files []upload.File
	var opened []*os.File
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll(opened)
			return nil, nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			closeAll(opened)
			return nil, nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			f.Close()
			closeAll(opened)
			return nil, nil, fmt.Errorf("%s is a directory; only files can be uploaded", p)
		}
		opened = append(opened, f)
		files = append(files, upload.File{Name: filepath.Base(p), Size: info.Size(), Data: f})
	}
	return files, opened, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func newUploadCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload local files into a directory of the tree",
		Long: `Upload local files into a directory of the tree.

Files above the large file threshold are sent in chunks when the server
supports it. Existing files are only replaced after confirmation.

Examples:
  filetree upload results.csv --dir docs/data
  filetree upload "*.ipynb" --dir notebooks -y`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			paths, err := expandGlobPatterns(args)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			files, opened, err := openLocalFiles(paths)
			if err != nil {
				return err
			}
			defer closeAll(opened)

			ui := progress.NewUploadUI(len(files))
			stop := ui.Follow(a.bus)
			res, err := a.commands.Execute(ctx, commands.Upload, commands.Args{Path: dir, Files: files})
			stop()
			ui.Wait()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Done {
				fmt.Fprintln(out, "Upload cancelled")
				return nil
			}
			fmt.Fprintf(out, "Uploaded %d file(s), %s, to %s\n", len(res.Entries), humanize.IBytes(uint64(res.Bytes)), displayPath(res.Path))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory (default: tree root)")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <path>",
		Short: "Download a file, or a folder as a zip archive",
		Long: `Download a file, or a folder as a zip archive.

Examples:
  filetree download docs/report.pdf
  filetree download docs -o /tmp/docs.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			path := pathutil.Normalize(args[0])
			entry, err := a.backend.Get(ctx, path, contents.GetOptions{})
			if err != nil {
				return fmt.Errorf("failed to look up %s: %w", displayPath(path), err)
			}

			total := int64(-1)
			name := pathutil.Base(path)
			if entry.IsDir() {
				name = archive.ZipName(path)
			} else if entry.Size != nil {
				total = *entry.Size
			}
			if output == "" {
				if err := validation.ValidatePathInDirectory(name, "."); err != nil {
					return err
				}
				output = name
			}
			if total > 0 {
				if err := diskspace.CheckAvailableSpace(output, total, 1.1); err != nil {
					return err
				}
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}

			reporter := progress.NewCLIProgress()
			reporter.Start(total, "Downloading "+name)
			w := progress.NewWriter(f, reporter)

			_, err = a.commands.Execute(ctx, commands.Download, commands.Args{
				Path:   path,
				Folder: entry.IsDir(),
				Dest:   w,
			})
			closeErr := f.Close()
			if err == nil {
				err = closeErr
			}
			if err != nil {
				reporter.Error(err)
				os.Remove(output)
				return err
			}
			reporter.Finish()

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", output, humanize.IBytes(uint64(w.Written())))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: the file name, or <folder>.zip)")
	return cmd
}

// runSimple opens the tree, runs one command and reports the resulting path.
func runSimple(cmd *cobra.Command, name string, args commands.Args, verb string) error {
	ctx := GetContext()
	a, err := openApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.commands.Execute(ctx, name, args)
	if err != nil {
		return err
	}
	if !res.Done {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, displayPath(res.Path))
	return nil
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or directory in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, commands.Rename, commands.Args{Path: args[0], Name: args[1]}, "Renamed to")
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <directory>",
		Short: "Move a file or directory into another directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, commands.Move, commands.Args{From: args[0], To: args[1]}, "Moved to")
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <path>",
		Aliases: []string{"delete"},
		Short:   "Delete a file or directory (asks first unless -y)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, commands.Delete, commands.Args{Path: args[0]}, "Deleted")
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir [directory]",
		Short: "Create an untitled folder inside a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			return runSimple(cmd, commands.CreateFolder, commands.Args{Path: dir}, "Created")
		},
	}
}

func newTouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <path>",
		Short: "Create an empty file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pathutil.Normalize(args[0])
			return runSimple(cmd, commands.CreateFile, commands.Args{Path: pathutil.Dir(p), Name: pathutil.Base(p)}, "Created")
		},
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [json-args]",
		Short: "Run a named tree command with JSON arguments",
		Long: `Run a named tree command with JSON arguments and print the result as JSON.

Examples:
  filetree exec toggle '{"path":"docs"}'
  filetree exec copyPath '{"path":"docs/a.txt"}'`,
		Args: cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return commands.New(commands.Deps{}).Names(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var cmdArgs commands.Args
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &cmdArgs); err != nil {
					return fmt.Errorf("invalid JSON arguments: %w", err)
				}
			}
			switch args[0] {
			case commands.Upload, commands.Download:
				return fmt.Errorf("use 'filetree %s' for %s", args[0], args[0])
			}

			ctx := GetContext()
			a, err := openApp(ctx, appOptions{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.commands.Execute(ctx, args[0], cmdArgs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func displayPath(p string) string {
	return "/" + pathutil.Normalize(p)
}
