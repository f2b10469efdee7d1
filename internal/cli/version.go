package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version and build information",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "codememory %s\n", Version)
		fmt.Fprintf(out, "Go:               %s\n", runtime.Version())
		fmt.Fprintf(out, "Build mode:       %s\n", storage.BuildMode)
		fmt.Fprintf(out, "SQLite driver:    %s\n", storage.DriverName)
		fmt.Fprintf(out, "Vector extension: %v\n", storage.VectorExtensionAvailable)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
