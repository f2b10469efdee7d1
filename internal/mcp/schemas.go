package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codememory/internal/searcher"
	"github.com/dshills/codememory/internal/storage"
	"github.com/dshills/codememory/pkg/types"
)

// Tool names
const (
	ToolIndexFiles           = "index_files"
	ToolIndexDirectory       = "index_directory"
	ToolSearchCode           = "search_code"
	ToolGetContext           = "get_context"
	ToolDeleteIndex          = "delete_index"
	ToolCreateMemory         = "create_memory"
	ToolGetMemories          = "get_memories"
	ToolGetPatterns          = "get_patterns"
	ToolRecordPatternOutcome = "record_pattern_outcome"
	ToolChat                 = "chat"
	ToolCodebaseSummary      = "codebase_summary"
)

var memoryTypes = []string{
	string(types.MemoryExecutionSuccess),
	string(types.MemoryPattern),
	string(types.MemoryInsight),
	string(types.MemoryFeedback),
}

func projectParam() mcp.ToolOption {
	return mcp.WithString("project_id",
		mcp.Required(),
		mcp.Description("Project the data belongs to"),
	)
}

// toolDefinitions returns every tool in registration order
func toolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		indexFilesTool(),
		indexDirectoryTool(),
		searchCodeTool(),
		getContextTool(),
		deleteIndexTool(),
		createMemoryTool(),
		getMemoriesTool(),
		getPatternsTool(),
		recordPatternOutcomeTool(),
		chatTool(),
		codebaseSummaryTool(),
	}
}

func indexFilesTool() mcp.Tool {
	return mcp.NewTool(ToolIndexFiles,
		mcp.WithDescription("Chunk, embed and store file contents. Unchanged chunks are not re-embedded."),
		projectParam(),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Files to index"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "File path used as the chunk source"},
					"content": map[string]any{"type": "string", "description": "Full file content"},
				},
				"required": []string{"path", "content"},
			}),
		),
	)
}

func indexDirectoryTool() mcp.Tool {
	return mcp.NewTool(ToolIndexDirectory,
		mcp.WithDescription("Walk a local directory and index every file matching the include globs"),
		projectParam(),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path of the directory to index"),
		),
		mcp.WithArray("include",
			mcp.Description("Doublestar globs relative to path, e.g. **/*.go"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("exclude",
			mcp.Description("Doublestar globs relative to path that are never indexed"),
			mcp.WithStringItems(),
		),
	)
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool(ToolSearchCode,
		mcp.WithDescription("Semantic search over indexed code"),
		mcp.WithReadOnlyHintAnnotation(true),
		projectParam(),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results"),
			mcp.DefaultNumber(searcher.DefaultMaxResults),
			mcp.Min(1),
			mcp.Max(searcher.MaxResultsLimit),
		),
		mcp.WithNumber("min_similarity",
			mcp.Description("Minimum cosine similarity between -1 and 1"),
			mcp.DefaultNumber(searcher.DefaultMinSimilarity),
			mcp.Min(-1),
			mcp.Max(1),
		),
		mcp.WithString("file_filter",
			mcp.Description("Glob restricting file paths, e.g. src/*.py"),
		),
	)
}

func getContextTool() mcp.Tool {
	return mcp.NewTool(ToolGetContext,
		mcp.WithDescription("Assemble token bounded code context and learned patterns for a task"),
		mcp.WithReadOnlyHintAnnotation(true),
		projectParam(),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Description of the task that needs context"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for the assembled context"),
			mcp.DefaultNumber(searcher.DefaultContextTokens),
			mcp.Min(1),
		),
		mcp.WithBoolean("include_patterns",
			mcp.Description("Prepend learned patterns that share a word with the task"),
			mcp.DefaultBool(true),
		),
	)
}

func deleteIndexTool() mcp.Tool {
	return mcp.NewTool(ToolDeleteIndex,
		mcp.WithDescription("Delete every indexed chunk of a project"),
		mcp.WithDestructiveHintAnnotation(true),
		projectParam(),
	)
}

func createMemoryTool() mcp.Tool {
	return mcp.NewTool(ToolCreateMemory,
		mcp.WithDescription("Record an execution outcome, pattern, insight or feedback for a project"),
		projectParam(),
		mcp.WithString("memory_type",
			mcp.Required(),
			mcp.Enum(memoryTypes...),
		),
		mcp.WithObject("content",
			mcp.Required(),
			mcp.Description("Arbitrary JSON object describing the memory"),
		),
		mcp.WithString("ticket_id",
			mcp.Description("Optional work item the memory relates to"),
		),
	)
}

func getMemoriesTool() mcp.Tool {
	return mcp.NewTool(ToolGetMemories,
		mcp.WithDescription("List memories of a project, newest first"),
		mcp.WithReadOnlyHintAnnotation(true),
		projectParam(),
		mcp.WithString("memory_type",
			mcp.Description("Only return memories of this type"),
			mcp.Enum(memoryTypes...),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of memories"),
			mcp.DefaultNumber(storage.DefaultMemoryLimit),
			mcp.Min(1),
		),
	)
}

func getPatternsTool() mcp.Tool {
	return mcp.NewTool(ToolGetPatterns,
		mcp.WithDescription("List learned patterns of a project, most successful first"),
		mcp.WithReadOnlyHintAnnotation(true),
		projectParam(),
		mcp.WithString("pattern_type",
			mcp.Description("Only return patterns of this type"),
		),
	)
}

func recordPatternOutcomeTool() mcp.Tool {
	return mcp.NewTool(ToolRecordPatternOutcome,
		mcp.WithDescription("Count a success or failure of a pattern. A first success creates the pattern."),
		projectParam(),
		mcp.WithString("pattern_type",
			mcp.Required(),
			mcp.MaxLength(storage.MaxPatternTypeLength),
		),
		mcp.WithAny("content",
			mcp.Required(),
			mcp.Description("Pattern body, any JSON value"),
		),
		mcp.WithBoolean("success",
			mcp.Required(),
			mcp.Description("Whether applying the pattern succeeded"),
		),
	)
}

func chatTool() mcp.Tool {
	return mcp.NewTool(ToolChat,
		mcp.WithDescription("Ask a question about the indexed codebase"),
		mcp.WithReadOnlyHintAnnotation(true),
		projectParam(),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The question"),
		),
		mcp.WithArray("history",
			mcp.Description("Earlier turns of the conversation"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"role", "content"},
			}),
		),
	)
}

func codebaseSummaryTool() mcp.Tool {
	return mcp.NewTool(ToolCodebaseSummary,
		mcp.WithDescription("Summarize what has been indexed for a project"),
		mcp.WithReadOnlyHintAnnotation(true),
		projectParam(),
	)
}
