// Package cli implements the codememory command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/app"
	"github.com/dshills/codememory/internal/config"
	"github.com/dshills/codememory/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	projectID string

	cfg    *config.Config
	logger *log.Logger

	// Version is set by the main package from build flags
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "codememory",
	Short: "Semantic code memory for AI coding assistants",
	Long: `codememory indexes source code into a vector store, answers semantic
searches, assembles token bounded context for tasks and remembers which
patterns worked. It serves everything to MCP clients over stdio.

Example usage:
  codememory index .                        # Index the current directory
  codememory search "retry failed payments" # Semantic search
  codememory context "add refund endpoint"  # Context for a task
  codememory serve                          # Run the MCP server`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		logger, err = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		if projectID == "" {
			projectID, err = defaultProject()
			if err != nil {
				return err
			}
		}
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./codememory.yaml or ~/.codememory/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id (default is the current directory name)")
}

// defaultProject names the project after the working directory
func defaultProject() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Base(wd), nil
}

// withApp runs fn against a freshly opened App and closes it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}
