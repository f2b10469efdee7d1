package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codememory/internal/embedder"
	"github.com/dshills/codememory/internal/indexer"
	"github.com/dshills/codememory/internal/insights"
	"github.com/dshills/codememory/internal/llm"
	"github.com/dshills/codememory/internal/searcher"
	"github.com/dshills/codememory/internal/storage"
	"github.com/dshills/codememory/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Project or pattern does not exist
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeProviderFailed     = -32003 // Embedding or completion provider failed
	ErrorCodeStorageFailed      = -32004 // Vector store or database failed
)

// maxReportedErrors limits how many per-file errors an index result carries
const maxReportedErrors = 5

// handleIndexFiles handles the index_files tool invocation
func (s *Server) handleIndexFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID string              `json:"project_id"`
		Files     []indexer.FileInput `json:"files"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}
	if args.ProjectID == "" {
		return missingParam("project_id"), nil
	}
	if len(args.Files) == 0 {
		return missingParam("files"), nil
	}

	stats, err := s.app.Indexer.IndexFiles(ctx, args.ProjectID, args.Files)
	if err != nil {
		return s.toolError("indexing failed", err), nil
	}
	s.app.Searcher.InvalidateCache()

	return jsonResult(newIndexResult(stats))
}

// handleIndexDirectory handles the index_directory tool invocation
func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID string   `json:"project_id"`
		Path      string   `json:"path"`
		Include   []string `json:"include"`
		Exclude   []string `json:"exclude"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}
	if args.ProjectID == "" {
		return missingParam("project_id"), nil
	}
	if err := validatePath(args.Path); err != nil {
		return errorResult(&MCPError{
			Code:    ErrorCodeInvalidParams,
			Message: "invalid path",
			Data:    map[string]any{"param": "path", "reason": err.Error()},
		}), nil
	}

	stats, err := s.app.Indexer.IndexDirectory(ctx, args.ProjectID, args.Path, indexer.DirectoryOptions{
		Include: args.Include,
		Exclude: args.Exclude,
	})
	if err != nil {
		return s.toolError("indexing failed", err), nil
	}
	s.app.Searcher.InvalidateCache()

	return jsonResult(newIndexResult(stats))
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID     string   `json:"project_id"`
		Query         string   `json:"query"`
		MaxResults    *int     `json:"max_results"`
		MinSimilarity *float64 `json:"min_similarity"`
		FileFilter    string   `json:"file_filter"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}
	if args.ProjectID == "" {
		return missingParam("project_id"), nil
	}

	cfg := s.app.Config.Search
	req := searcher.SearchRequest{
		ProjectID:     args.ProjectID,
		Query:         args.Query,
		MaxResults:    cfg.MaxResults,
		MinSimilarity: cfg.MinSimilarity,
		FileFilter:    args.FileFilter,
		UseCache:      true,
		CacheTTL:      cfg.CacheTTL,
	}
	if args.MaxResults != nil {
		if *args.MaxResults < 1 || *args.MaxResults > searcher.MaxResultsLimit {
			return errorResult(&MCPError{
				Code:    ErrorCodeInvalidParams,
				Message: fmt.Sprintf("max_results must be between 1 and %d", searcher.MaxResultsLimit),
				Data:    map[string]any{"param": "max_results", "value": *args.MaxResults},
			}), nil
		}
		req.MaxResults = *args.MaxResults
	}
	if args.MinSimilarity != nil {
		req.MinSimilarity = *args.MinSimilarity
	}

	resp, err := s.app.Searcher.Search(ctx, req)
	if err != nil {
		return s.toolError("search failed", err), nil
	}

	results := make([]searchResult, len(resp.Results))
	for i, m := range resp.Results {
		results[i] = searchResult{
			ID:         m.ID,
			FilePath:   m.FilePath,
			ChunkIndex: m.ChunkIndex,
			Language:   m.Language,
			Content:    m.Content,
			Similarity: m.Similarity,
		}
	}

	return jsonResult(searchResponse{
		Results:    results,
		Count:      len(results),
		DurationMs: resp.Duration.Milliseconds(),
		CacheHit:   resp.CacheHit,
	})
}

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID       string `json:"project_id"`
		Task            string `json:"task"`
		MaxTokens       *int   `json:"max_tokens"`
		IncludePatterns *bool  `json:"include_patterns"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}
	if args.ProjectID == "" {
		return missingParam("project_id"), nil
	}

	maxTokens := searcher.DefaultContextTokens
	if args.MaxTokens != nil {
		if *args.MaxTokens < 1 {
			return errorResult(&MCPError{
				Code:    ErrorCodeInvalidParams,
				Message: "max_tokens must be positive",
				Data:    map[string]any{"param": "max_tokens", "value": *args.MaxTokens},
			}), nil
		}
		maxTokens = *args.MaxTokens
	}

	if args.IncludePatterns != nil && !*args.IncludePatterns {
		text, sources, err := s.app.Searcher.GetRelevantContext(ctx, args.ProjectID, args.Task, searcher.ContextMaxResults, maxTokens)
		if err != nil {
			return s.toolError("context assembly failed", err), nil
		}
		return jsonResult(contextResponse{Context: text, Sources: sources, Patterns: []patternResult{}})
	}

	result, err := s.app.Searcher.GetContextWithPatterns(ctx, args.ProjectID, args.Task, maxTokens)
	if err != nil {
		return s.toolError("context assembly failed", err), nil
	}
	return jsonResult(contextResponse{
		Context:  result.Context,
		Sources:  result.Sources,
		Patterns: newPatternResults(result.Patterns),
	})
}

// handleDeleteIndex handles the delete_index tool invocation
func (s *Server) handleDeleteIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	if projectID == "" {
		return missingParam("project_id"), nil
	}

	deleted, err := s.app.Store.DeleteProjectEmbeddings(ctx, projectID)
	if err != nil {
		return s.storeError("failed to delete index", err), nil
	}
	s.app.Searcher.InvalidateCache()
	s.logger.Info("deleted project index", "project", projectID, "chunks", deleted)

	return jsonResult(map[string]any{
		"project_id":    projectID,
		"deleted_count": deleted,
	})
}

// handleCreateMemory handles the create_memory tool invocation
func (s *Server) handleCreateMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID  string         `json:"project_id"`
		MemoryType string         `json:"memory_type"`
		Content    map[string]any `json:"content"`
		TicketID   string         `json:"ticket_id"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}
	if args.Content == nil {
		return missingParam("content"), nil
	}

	memory := &types.Memory{
		ProjectID:  args.ProjectID,
		TicketID:   args.TicketID,
		MemoryType: types.MemoryType(args.MemoryType),
		Content:    args.Content,
	}
	id, err := s.app.Store.CreateMemory(ctx, memory)
	if err != nil {
		return s.storeError("failed to create memory", err), nil
	}

	return jsonResult(map[string]any{
		"id":         id,
		"created_at": memory.CreatedAt.Format(time.RFC3339),
	})
}

// handleGetMemories handles the get_memories tool invocation
func (s *Server) handleGetMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	if projectID == "" {
		return missingParam("project_id"), nil
	}
	memoryType := types.MemoryType(request.GetString("memory_type", ""))
	limit := request.GetInt("limit", storage.DefaultMemoryLimit)

	memories, err := s.app.Store.GetMemories(ctx, projectID, memoryType, limit)
	if err != nil {
		return s.storeError("failed to get memories", err), nil
	}

	results := make([]memoryResult, len(memories))
	for i, m := range memories {
		results[i] = memoryResult{
			ID:         m.ID,
			TicketID:   m.TicketID,
			MemoryType: string(m.MemoryType),
			Content:    m.Content,
			CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		}
	}
	return jsonResult(map[string]any{
		"memories": results,
		"count":    len(results),
	})
}

// handleGetPatterns handles the get_patterns tool invocation
func (s *Server) handleGetPatterns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	if projectID == "" {
		return missingParam("project_id"), nil
	}

	patterns, err := s.app.Store.GetLearnedPatterns(ctx, projectID, request.GetString("pattern_type", ""))
	if err != nil {
		return s.storeError("failed to get patterns", err), nil
	}

	results := newPatternResults(patterns)
	return jsonResult(map[string]any{
		"patterns": results,
		"count":    len(results),
	})
}

// handleRecordPatternOutcome handles the record_pattern_outcome tool invocation
func (s *Server) handleRecordPatternOutcome(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID   string          `json:"project_id"`
		PatternType string          `json:"pattern_type"`
		Content     json.RawMessage `json:"content"`
		Success     *bool           `json:"success"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}
	if args.Success == nil {
		return missingParam("success"), nil
	}

	pattern, err := s.app.Store.RecordPatternOutcome(ctx, storage.PatternOutcome{
		ProjectID:   args.ProjectID,
		PatternType: args.PatternType,
		Content:     args.Content,
		Success:     *args.Success,
	})
	if err != nil {
		return s.storeError("failed to record pattern outcome", err), nil
	}

	return jsonResult(newPatternResult(*pattern))
}

// handleChat handles the chat tool invocation
func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProjectID string        `json:"project_id"`
		Message   string        `json:"message"`
		History   []llm.Message `json:"history"`
	}
	if res := bindArgs(request, &args); res != nil {
		return res, nil
	}

	resp, err := s.app.Insights.Chat(ctx, args.ProjectID, args.Message, args.History)
	if err != nil {
		return s.toolError("chat failed", err), nil
	}
	return jsonResult(resp)
}

// handleCodebaseSummary handles the codebase_summary tool invocation
func (s *Server) handleCodebaseSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	if projectID == "" {
		return missingParam("project_id"), nil
	}

	summary, err := s.app.Insights.Summary(ctx, projectID)
	if err != nil {
		return s.storeError("failed to summarize codebase", err), nil
	}
	return jsonResult(summary)
}

// Response shapes

type indexResult struct {
	FilesIndexed    int      `json:"files_indexed"`
	FilesSkipped    int      `json:"files_skipped"`
	FilesFailed     int      `json:"files_failed"`
	ChunksCreated   int      `json:"chunks_created"`
	ChunksUnchanged int      `json:"chunks_unchanged"`
	ChunksDeleted   int      `json:"chunks_deleted"`
	DurationMs      int64    `json:"duration_ms"`
	Errors          []string `json:"errors,omitempty"`
	ErrorCount      int      `json:"error_count,omitempty"`
}

func newIndexResult(stats *indexer.Statistics) indexResult {
	res := indexResult{
		FilesIndexed:    stats.FilesIndexed,
		FilesSkipped:    stats.FilesSkipped,
		FilesFailed:     stats.FilesFailed,
		ChunksCreated:   stats.ChunksCreated,
		ChunksUnchanged: stats.ChunksUnchanged,
		ChunksDeleted:   stats.ChunksDeleted,
		DurationMs:      stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		res.Errors = stats.ErrorMessages
		if n > maxReportedErrors {
			res.Errors = stats.ErrorMessages[:maxReportedErrors]
			res.ErrorCount = n
		}
	}
	return res
}

type searchResult struct {
	ID         string  `json:"id"`
	FilePath   string  `json:"file_path"`
	ChunkIndex int     `json:"chunk_index"`
	Language   string  `json:"language"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type searchResponse struct {
	Results    []searchResult `json:"results"`
	Count      int            `json:"count"`
	DurationMs int64          `json:"duration_ms"`
	CacheHit   bool           `json:"cache_hit"`
}

type contextResponse struct {
	Context  string          `json:"context"`
	Sources  []string        `json:"sources"`
	Patterns []patternResult `json:"patterns"`
}

type memoryResult struct {
	ID         string         `json:"id"`
	TicketID   string         `json:"ticket_id,omitempty"`
	MemoryType string         `json:"memory_type"`
	Content    map[string]any `json:"content"`
	CreatedAt  string         `json:"created_at"`
}

type patternResult struct {
	ID           string          `json:"id"`
	PatternType  string          `json:"pattern_type"`
	Content      json.RawMessage `json:"content"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	LastUsedAt   string          `json:"last_used_at"`
}

func newPatternResult(p types.LearnedPattern) patternResult {
	return patternResult{
		ID:           p.ID,
		PatternType:  p.PatternType,
		Content:      p.PatternContent,
		SuccessCount: p.SuccessCount,
		FailureCount: p.FailureCount,
		LastUsedAt:   p.LastUsedAt.Format(time.RFC3339),
	}
}

func newPatternResults(patterns []types.LearnedPattern) []patternResult {
	out := make([]patternResult, len(patterns))
	for i, p := range patterns {
		out[i] = newPatternResult(p)
	}
	return out
}

// Helper functions

// MCPError represents an MCP protocol error. It travels to the client as the
// JSON text of an isError tool result, since mcp-go reports every Go error
// returned by a handler as an internal error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// classify maps a domain error to its MCP error code
func classify(err error) int {
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return ErrorCodeIndexingInProgress
	case errors.Is(err, embedder.ErrProviderFailed),
		errors.Is(err, embedder.ErrDimensionMismatch),
		errors.Is(err, llm.ErrCompletionFailed):
		return ErrorCodeProviderFailed
	case errors.Is(err, storage.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, types.ErrEmptyProjectID),
		errors.Is(err, types.ErrEmptyFilePath),
		errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrInvalidMemoryType),
		errors.Is(err, types.ErrEmptyPatternType),
		errors.Is(err, types.ErrInvalidSimilarity),
		errors.Is(err, searcher.ErrEmptyQuery),
		errors.Is(err, insights.ErrEmptyMessage),
		errors.Is(err, llm.ErrInvalidMessage),
		errors.Is(err, embedder.ErrInvalidInput),
		errors.Is(err, embedder.ErrEmptyText):
		return ErrorCodeInvalidParams
	case errors.Is(err, searcher.ErrStoreFailed):
		return ErrorCodeStorageFailed
	default:
		return ErrorCodeInternalError
	}
}

// toolError logs err and wraps it into an error result
func (s *Server) toolError(message string, err error) *mcp.CallToolResult {
	code := classify(err)
	if code == ErrorCodeInternalError || code == ErrorCodeStorageFailed || code == ErrorCodeProviderFailed {
		s.logger.Error(message, "err", err)
	} else {
		s.logger.Debug(message, "err", err)
	}
	return errorResult(&MCPError{
		Code:    code,
		Message: message,
		Data:    map[string]any{"error": err.Error()},
	})
}

// storeError reports a store failure that carries no more specific code as
// a storage error
func (s *Server) storeError(message string, err error) *mcp.CallToolResult {
	if classify(err) == ErrorCodeInternalError {
		err = fmt.Errorf("%w: %w", searcher.ErrStoreFailed, err)
	}
	return s.toolError(message, err)
}

func errorResult(e *MCPError) *mcp.CallToolResult {
	b, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(e.Error())
	}
	return mcp.NewToolResultError(string(b))
}

func missingParam(name string) *mcp.CallToolResult {
	return errorResult(&MCPError{
		Code:    ErrorCodeInvalidParams,
		Message: name + " parameter is required",
		Data:    map[string]any{"param": name, "reason": "missing or empty"},
	})
}

// bindArgs decodes the arguments into target and returns an error result when
// they do not fit
func bindArgs(request mcp.CallToolRequest, target any) *mcp.CallToolResult {
	if err := request.BindArguments(target); err != nil {
		return errorResult(&MCPError{
			Code:    ErrorCodeInvalidParams,
			Message: "invalid arguments",
			Data:    map[string]any{"error": err.Error()},
		})
	}
	return nil
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	res, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return errorResult(&MCPError{Code: ErrorCodeInternalError, Message: err.Error()}), nil
	}
	return res, nil
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
