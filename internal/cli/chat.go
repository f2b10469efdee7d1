package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/app"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask a question about the indexed code",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize what has been indexed",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(summaryCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		resp, err := a.Insights.Chat(ctx, projectID, message, nil)
		if err != nil {
			return fmt.Errorf("chat failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, resp.Response)
		if len(resp.Sources) > 0 {
			fmt.Fprintf(out, "\nSources:\n")
			for _, s := range resp.Sources {
				fmt.Fprintf(out, "  - %s\n", s)
			}
		}
		return nil
	})
}

func runSummary(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		summary, err := a.Insights.Summary(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to summarize codebase: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Project: %s\n", summary.ProjectID)
		fmt.Fprintf(out, "  Files:  %d\n", summary.TotalFiles)
		fmt.Fprintf(out, "  Chunks: %d\n", summary.TotalChunks)

		if len(summary.Languages) > 0 {
			langs := make([]string, 0, len(summary.Languages))
			for lang := range summary.Languages {
				langs = append(langs, lang)
			}
			sort.Strings(langs)

			fmt.Fprintf(out, "  Languages:\n")
			for _, lang := range langs {
				fmt.Fprintf(out, "    %-12s %d\n", lang, summary.Languages[lang])
			}
		}
		if len(summary.MainTechnologies) > 0 {
			fmt.Fprintf(out, "  Main technologies: %s\n", strings.Join(summary.MainTechnologies, ", "))
		}
		fmt.Fprintf(out, "\n%s\n", summary.ArchitectureNotes)
		return nil
	})
}
