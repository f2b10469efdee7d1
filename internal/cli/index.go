package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/app"
	"github.com/dshills/codememory/internal/indexer"
)

var (
	indexInclude    []string
	indexExclude    []string
	indexNoProgress bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory",
	Long: `Index every file under the directory that matches the include globs.
Chunks whose content did not change since the last run are not re-embedded.

Examples:
  codememory index .                             # Index current directory
  codememory index ~/src/api -p api              # Index under project "api"
  codememory index . --include '**/*.go'         # Only Go files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringSliceVar(&indexInclude, "include", nil, "include globs (default from config)")
	indexCmd.Flags().StringSliceVar(&indexExclude, "exclude", nil, "exclude globs (default from config)")
	indexCmd.Flags().BoolVar(&indexNoProgress, "no-progress", false, "disable the progress bar")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexing %s as project %q...\n", path, projectID)

		opts := indexer.DirectoryOptions{Include: indexInclude, Exclude: indexExclude}
		if !indexNoProgress {
			opts.Progress = newProgress(cmd)
		}

		stats, err := a.Indexer.IndexDirectory(ctx, projectID, path, opts)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		fmt.Fprintf(out, "\nIndexing complete:\n")
		fmt.Fprintf(out, "  Files indexed:    %d\n", stats.FilesIndexed)
		fmt.Fprintf(out, "  Files skipped:    %d\n", stats.FilesSkipped)
		fmt.Fprintf(out, "  Files failed:     %d\n", stats.FilesFailed)
		fmt.Fprintf(out, "  Chunks created:   %d\n", stats.ChunksCreated)
		fmt.Fprintf(out, "  Chunks unchanged: %d\n", stats.ChunksUnchanged)
		fmt.Fprintf(out, "  Chunks deleted:   %d\n", stats.ChunksDeleted)
		fmt.Fprintf(out, "  Duration:         %s\n", formatDuration(stats.Duration))

		if len(stats.ErrorMessages) > 0 {
			fmt.Fprintf(out, "\nWarnings:\n")
			for _, e := range stats.ErrorMessages {
				fmt.Fprintf(out, "  - %s\n", e)
			}
		}
		return nil
	})
}

// newProgress returns a progress callback that lazily creates the bar once
// the number of files is known
func newProgress(cmd *cobra.Command) indexer.ProgressFunc {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(done, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}

		_ = bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
