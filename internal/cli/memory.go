package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codememory/internal/app"
	"github.com/dshills/codememory/internal/storage"
	"github.com/dshills/codememory/pkg/types"
)

var (
	memoryTicket string
	memoryType   string
	memoryLimit  int

	patternType    string
	patternFailure bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Record and list project memories",
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <type> <content>",
	Short: "Record a memory",
	Long: `Record a memory of type execution_success, pattern, insight or feedback.
Content is a JSON object; plain text is stored as {"text": "..."}.

Examples:
  codememory memory add insight 'retries live in payments/retry.py'
  codememory memory add execution_success '{"task":"refunds","tests":"pass"}' --ticket PAY-12`,
	Args: cobra.ExactArgs(2),
	RunE: runMemoryAdd,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories, newest first",
	Args:  cobra.NoArgs,
	RunE:  runMemoryList,
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned patterns, most successful first",
	Args:  cobra.NoArgs,
	RunE:  runPatterns,
}

var patternsRecordCmd = &cobra.Command{
	Use:   "record <type> <content>",
	Short: "Count a success (or, with --failure, a failure) of a pattern",
	Args:  cobra.ExactArgs(2),
	RunE:  runPatternsRecord,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryListCmd)
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsRecordCmd)

	memoryAddCmd.Flags().StringVar(&memoryTicket, "ticket", "", "work item the memory relates to")
	memoryListCmd.Flags().StringVar(&memoryType, "type", "", "only list memories of this type")
	memoryListCmd.Flags().IntVarP(&memoryLimit, "limit", "n", storage.DefaultMemoryLimit, "maximum number of memories")

	patternsCmd.Flags().StringVar(&patternType, "type", "", "only list patterns of this type")
	patternsRecordCmd.Flags().BoolVar(&patternFailure, "failure", false, "record a failure instead of a success")
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	memory := &types.Memory{
		ProjectID:  projectID,
		TicketID:   memoryTicket,
		MemoryType: types.MemoryType(args[0]),
		Content:    parseMemoryContent(args[1]),
	}
	if err := memory.Validate(); err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		id, err := a.Store.CreateMemory(ctx, memory)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s memory %s\n", memory.MemoryType, id)
		return nil
	})
}

// parseMemoryContent accepts a JSON object and wraps anything else as text
func parseMemoryContent(raw string) map[string]any {
	var content map[string]any
	if err := json.Unmarshal([]byte(raw), &content); err == nil && content != nil {
		return content
	}
	return map[string]any{"text": raw}
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		memories, err := a.Store.GetMemories(ctx, projectID, types.MemoryType(memoryType), memoryLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(memories) == 0 {
			fmt.Fprintf(out, "No memories for project %q\n", projectID)
			return nil
		}
		for _, m := range memories {
			content, _ := json.Marshal(m.Content)
			ticket := ""
			if m.TicketID != "" {
				ticket = " [" + m.TicketID + "]"
			}
			fmt.Fprintf(out, "%s  %-17s%s %s\n", m.CreatedAt.Local().Format(time.DateTime), m.MemoryType, ticket, content)
		}
		return nil
	})
}

func runPatterns(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		patterns, err := a.Store.GetLearnedPatterns(ctx, projectID, patternType)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(patterns) == 0 {
			fmt.Fprintf(out, "No learned patterns for project %q\n", projectID)
			return nil
		}
		for _, p := range patterns {
			fmt.Fprintf(out, "%-20s +%d -%d  %s\n", p.PatternType, p.SuccessCount, p.FailureCount, preview(p.ContentString(), 100))
		}
		return nil
	})
}

func runPatternsRecord(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		p, err := a.Store.RecordPatternOutcome(ctx, storage.PatternOutcome{
			ProjectID:   projectID,
			PatternType: args[0],
			Content:     patternContent(args[1]),
			Success:     !patternFailure,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d successes, %d failures\n", p.PatternType, p.SuccessCount, p.FailureCount)
		return nil
	})
}

// patternContent keeps valid JSON as is and encodes anything else as a string
func patternContent(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(raw)
	return encoded
}
