package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/app"
	"github.com/dshills/codememory/internal/searcher"
)

var (
	searchLimit         int
	searchMinSimilarity float64
	searchFilter        string

	contextMaxTokens  int
	contextNoPatterns bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed code",
	Long: `Search the project's indexed chunks by meaning.

Examples:
  codememory search "where are passwords hashed"
  codememory search "http handlers" -k 5 --filter 'internal/*.go'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var contextCmd = &cobra.Command{
	Use:   "context <task>",
	Short: "Assemble code context and learned patterns for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContext,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0, "minimum similarity between -1 and 1 (default from config)")
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "glob restricting file paths")

	contextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", searcher.DefaultContextTokens, "token budget")
	contextCmd.Flags().BoolVar(&contextNoPatterns, "no-patterns", false, "leave out learned patterns")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	req := searcher.SearchRequest{
		ProjectID:     projectID,
		Query:         query,
		MaxResults:    cfg.Search.MaxResults,
		MinSimilarity: cfg.Search.MinSimilarity,
		FileFilter:    searchFilter,
	}
	if searchLimit > 0 {
		req.MaxResults = searchLimit
	}
	if cmd.Flags().Changed("min-similarity") {
		req.MinSimilarity = searchMinSimilarity
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		resp, err := a.Searcher.Search(ctx, req)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(resp.Results) == 0 {
			fmt.Fprintf(out, "No results for %q in project %q\n", query, projectID)
			return nil
		}

		fmt.Fprintf(out, "Top %d matches for %q:\n\n", len(resp.Results), query)
		for i, r := range resp.Results {
			fmt.Fprintf(out, "%d. [%.3f] %s#%d (%s)\n", i+1, r.Similarity, r.FilePath, r.ChunkIndex, r.Language)
			fmt.Fprintf(out, "   %s\n\n", preview(r.Content, 150))
		}
		return nil
	})
}

func runContext(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		var text string
		var sources []string

		if contextNoPatterns {
			var err error
			text, sources, err = a.Searcher.GetRelevantContext(ctx, projectID, task, searcher.ContextMaxResults, contextMaxTokens)
			if err != nil {
				return fmt.Errorf("context assembly failed: %w", err)
			}
		} else {
			result, err := a.Searcher.GetContextWithPatterns(ctx, projectID, task, contextMaxTokens)
			if err != nil {
				return fmt.Errorf("context assembly failed: %w", err)
			}
			text, sources = result.Context, result.Sources
		}

		out := cmd.OutOrStdout()
		if text == "" {
			fmt.Fprintln(out, "No relevant context found.")
			return nil
		}
		fmt.Fprintln(out, text)
		fmt.Fprintf(out, "Sources: %s\n", strings.Join(sources, ", "))
		return nil
	})
}

// preview flattens text onto one line and cuts it to n runes
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return text
}
