package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dshills/codememory/pkg/types"
)

const (
	// MaxLearnedPatterns caps the number of patterns returned by GetLearnedPatterns
	MaxLearnedPatterns = 50

	// DefaultMemoryLimit is used by GetMemories when limit <= 0
	DefaultMemoryLimit = 100

	// MaxPatternTypeLength is the longest accepted pattern type tag
	MaxPatternTypeLength = 100
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnknownDriver is returned by Open for an unsupported storage driver
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Storage defines the interface for persisting chunks, memories and learned
// patterns. Implementations are safe for concurrent use.
type Storage interface {
	// Code chunk operations
	UpsertEmbedding(ctx context.Context, chunk *types.CodeChunk) (string, error)
	GetChunkHashes(ctx context.Context, projectID, filePath string) (map[int]ChunkHash, error)
	DeleteFileChunksFrom(ctx context.Context, projectID, filePath string, fromIndex int) (int64, error)
	DeleteProjectEmbeddings(ctx context.Context, projectID string) (int64, error)
	SearchSimilar(ctx context.Context, query SearchQuery) ([]types.SearchMatch, error)
	GetProjectStats(ctx context.Context, projectID string) (*ProjectStats, error)

	// Memory operations
	CreateMemory(ctx context.Context, memory *types.Memory) (string, error)
	GetMemories(ctx context.Context, projectID string, memoryType types.MemoryType, limit int) ([]types.Memory, error)

	// Pattern operations
	GetLearnedPatterns(ctx context.Context, projectID, patternType string) ([]types.LearnedPattern, error)
	RecordPatternOutcome(ctx context.Context, outcome PatternOutcome) (*types.LearnedPattern, error)

	Close() error
}

// SearchQuery describes a nearest-neighbor lookup over a project's chunks
type SearchQuery struct {
	ProjectID     string
	Embedding     []float32
	MaxResults    int
	MinSimilarity float64
	// FileFilter is an optional glob over file paths; '*' matches any run of characters.
	FileFilter string
}

// ChunkHash identifies what a stored chunk's vector was computed from
type ChunkHash struct {
	ContentHash    string
	EmbeddingModel string // provider/model, empty when unknown
}

// PatternOutcome reports whether applying a learned pattern worked
type PatternOutcome struct {
	ProjectID   string
	PatternType string
	Content     json.RawMessage
	Success     bool
}

// ProjectStats aggregates what is stored for one project
type ProjectStats struct {
	ProjectID   string
	TotalFiles  int
	TotalChunks int
	// Languages maps language name to the number of files in it.
	Languages     map[string]int
	LastIndexedAt time.Time
}

func validateSearchQuery(q SearchQuery) error {
	if q.ProjectID == "" {
		return types.ErrEmptyProjectID
	}
	if len(q.Embedding) == 0 {
		return types.ErrMissingVector
	}
	if q.MinSimilarity < -1 || q.MinSimilarity > 1 {
		return types.ErrInvalidSimilarity
	}
	return nil
}

func validateOutcome(o PatternOutcome) error {
	if o.ProjectID == "" {
		return types.ErrEmptyProjectID
	}
	if o.PatternType == "" || len(o.PatternType) > MaxPatternTypeLength {
		return types.ErrEmptyPatternType
	}
	if len(o.Content) == 0 || !json.Valid(o.Content) {
		return types.ErrEmptyContent
	}
	return nil
}

// canonicalPattern re-encodes content with sorted object keys and returns it
// with its hash, so formatting differences map to the same pattern.
func canonicalPattern(content json.RawMessage) (json.RawMessage, string, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return out, types.HashContent(string(out)), nil
}

func memoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultMemoryLimit
	}
	return limit
}
