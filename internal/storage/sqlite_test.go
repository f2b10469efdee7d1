package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codememory/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage.db)

	version, err := schemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestMigrations_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	first, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	_, err = first.UpsertEmbedding(context.Background(), testChunk("p1", "a.go", 0, "package a", 1, 0))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer second.Close()

	var applied int
	err = second.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, len(AllMigrations), applied)

	hashes, err := second.GetChunkHashes(context.Background(), "p1", "a.go")
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	version, err := schemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())

	require.NoError(t, RollbackMigration(ctx, storage.db))
	version, err = schemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version.String())

	// Nothing left to roll back
	assert.ErrorIs(t, RollbackMigration(ctx, storage.db), ErrNotFound)

	// And everything can be applied again
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	version, err = schemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestCreateMemory(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	memory := &types.Memory{
		ProjectID:  "p1",
		TicketID:   "TICKET-1",
		MemoryType: types.MemoryExecutionSuccess,
		Content:    map[string]any{"summary": "added retry", "files": []any{"a.go"}},
		Embedding:  []float32{0.1, 0.2},
	}
	id, err := storage.CreateMemory(ctx, memory)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, memory.ID)
	assert.False(t, memory.CreatedAt.IsZero())

	memories, err := storage.GetMemories(ctx, "p1", "", 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	got := memories[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "TICKET-1", got.TicketID)
	assert.Equal(t, types.MemoryExecutionSuccess, got.MemoryType)
	assert.Equal(t, "added retry", got.Content["summary"])
	assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
}

func TestCreateMemory_InvalidType(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.CreateMemory(context.Background(), &types.Memory{
		ProjectID:  "p1",
		MemoryType: "opinion",
	})
	assert.ErrorIs(t, err, types.ErrInvalidMemoryType)
}

func TestGetMemories_NewestFirst(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := storage.CreateMemory(ctx, &types.Memory{
			ProjectID:  "p1",
			MemoryType: types.MemoryInsight,
			Content:    map[string]any{"n": i},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	memories, err := storage.GetMemories(ctx, "p1", "", 0)
	require.NoError(t, err)
	require.Len(t, memories, 3)
	assert.Equal(t, ids[2], memories[0].ID)
	assert.Equal(t, ids[1], memories[1].ID)
	assert.Equal(t, ids[0], memories[2].ID)

	limited, err := storage.GetMemories(ctx, "p1", "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, ids[2], limited[0].ID)
}

func TestGetMemories_TypeFilter(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	for _, mt := range []types.MemoryType{types.MemoryInsight, types.MemoryFeedback, types.MemoryInsight} {
		_, err := storage.CreateMemory(ctx, &types.Memory{ProjectID: "p1", MemoryType: mt})
		require.NoError(t, err)
	}
	_, err := storage.CreateMemory(ctx, &types.Memory{ProjectID: "p2", MemoryType: types.MemoryInsight})
	require.NoError(t, err)

	insights, err := storage.GetMemories(ctx, "p1", types.MemoryInsight, 0)
	require.NoError(t, err)
	assert.Len(t, insights, 2)

	_, err = storage.GetMemories(ctx, "p1", "bogus", 0)
	assert.ErrorIs(t, err, types.ErrInvalidMemoryType)

	empty, err := storage.GetMemories(ctx, "unknown", "", 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRecordPatternOutcome(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	content := json.RawMessage(`{"approach": "table driven tests", "lang": "go"}`)

	t.Run("failure before any success", func(t *testing.T) {
		_, err := storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID: "p1", PatternType: "testing", Content: content, Success: false,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("first success creates the pattern", func(t *testing.T) {
		p, err := storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID: "p1", PatternType: "testing", Content: content, Success: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, p.SuccessCount)
		assert.Equal(t, 0, p.FailureCount)
		assert.False(t, p.LastUsedAt.IsZero())
	})

	t.Run("same content in another key order updates the same row", func(t *testing.T) {
		reordered := json.RawMessage(`{"lang":"go","approach":"table driven tests"}`)
		p, err := storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID: "p1", PatternType: "testing", Content: reordered, Success: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, p.SuccessCount)

		f, err := storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID: "p1", PatternType: "testing", Content: content, Success: false,
		})
		require.NoError(t, err)
		assert.Equal(t, p.ID, f.ID)
		assert.Equal(t, 2, f.SuccessCount)
		assert.Equal(t, 1, f.FailureCount)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := storage.RecordPatternOutcome(ctx, PatternOutcome{ProjectID: "p1", Content: content, Success: true})
		assert.ErrorIs(t, err, types.ErrEmptyPatternType)

		_, err = storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID: "p1", PatternType: "x", Content: json.RawMessage(`{not json`), Success: true,
		})
		assert.ErrorIs(t, err, types.ErrEmptyContent)
	})
}

func TestGetLearnedPatterns_OrderAndCap(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	for i := 0; i < MaxLearnedPatterns+5; i++ {
		_, err := storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID:   "p1",
			PatternType: "refactor",
			Content:     json.RawMessage(fmt.Sprintf(`{"n": %d}`, i)),
			Success:     true,
		})
		require.NoError(t, err)
	}

	// Make one pattern clearly the most successful
	for i := 0; i < 3; i++ {
		_, err := storage.RecordPatternOutcome(ctx, PatternOutcome{
			ProjectID: "p1", PatternType: "refactor", Content: json.RawMessage(`{"n": 7}`), Success: true,
		})
		require.NoError(t, err)
	}

	patterns, err := storage.GetLearnedPatterns(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, patterns, MaxLearnedPatterns)
	assert.Equal(t, 4, patterns[0].SuccessCount)
	assert.JSONEq(t, `{"n": 7}`, string(patterns[0].PatternContent))
	for i := 1; i < len(patterns); i++ {
		assert.GreaterOrEqual(t, patterns[i-1].SuccessCount, patterns[i].SuccessCount)
	}

	other, err := storage.GetLearnedPatterns(ctx, "p1", "naming")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetProjectStats(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	empty, err := storage.GetProjectStats(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalFiles)
	assert.True(t, empty.LastIndexedAt.IsZero())

	chunks := []*types.CodeChunk{
		testChunk("p1", "main.go", 0, "package main", 1, 0),
		testChunk("p1", "main.go", 1, "func main() {}", 0, 1),
		testChunk("p1", "app.py", 0, "def run(): pass", 1, 1),
		testChunk("p2", "other.go", 0, "package other", 1, 0),
	}
	chunks[0].Language = "go"
	chunks[1].Language = "go"
	chunks[2].Language = "python"
	for _, c := range chunks {
		_, err := storage.UpsertEmbedding(ctx, c)
		require.NoError(t, err)
	}

	stats, err := storage.GetProjectStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, map[string]int{"go": 1, "python": 1}, stats.Languages)
	assert.False(t, stats.LastIndexedAt.IsZero())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "nested", "db.sqlite")}, 384)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(ctx, Config{Driver: "mysql"}, 384)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
