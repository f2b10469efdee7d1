package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/app"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every indexed chunk of the project",
	Long: `Delete every indexed chunk of the project. Memories and learned patterns
are kept.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		deleted, err := a.Store.DeleteProjectEmbeddings(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks from project %q\n", deleted, projectID)
		return nil
	})
}
