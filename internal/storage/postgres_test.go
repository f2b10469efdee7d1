package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codememory/pkg/types"
)

// setupPostgres connects to CODEMEMORY_TEST_DATABASE_URL and returns a store
// plus a project id unique to the test.
func setupPostgres(t *testing.T) (*PostgresStorage, string) {
	t.Helper()
	url := os.Getenv("CODEMEMORY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CODEMEMORY_TEST_DATABASE_URL not set")
	}

	store, err := NewPostgresStorage(context.Background(), url, 4, 2)
	require.NoError(t, err)

	projectID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = store.DeleteProjectEmbeddings(ctx, projectID)
		_, _ = store.pool.Exec(ctx, "DELETE FROM project_memories WHERE project_id = $1", projectID)
		_, _ = store.pool.Exec(ctx, "DELETE FROM learned_patterns WHERE project_id = $1", projectID)
		_ = store.Close()
	})
	return store, projectID
}

func TestPostgres_UpsertAndSearch(t *testing.T) {
	store, project := setupPostgres(t)
	ctx := context.Background()

	id1, err := store.UpsertEmbedding(ctx, testChunk(project, "internal/a.go", 0, "func A()", unitAt(0.9)...))
	require.NoError(t, err)
	id2, err := store.UpsertEmbedding(ctx, testChunk(project, "internal/a.go", 0, "func A() error", unitAt(0.95)...))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, err = store.UpsertEmbedding(ctx, testChunk(project, "cmd/main.go", 0, "func main()", unitAt(0.5)...))
	require.NoError(t, err)

	results, err := store.SearchSimilar(ctx, SearchQuery{
		ProjectID: project, Embedding: []float32{1, 0}, MaxResults: 10, MinSimilarity: 0.3,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "internal/a.go", results[0].FilePath)
	assert.Equal(t, "func A() error", results[0].Content)
	assert.InDelta(t, 0.95, results[0].Similarity, 1e-4)

	filtered, err := store.SearchSimilar(ctx, SearchQuery{
		ProjectID: project, Embedding: []float32{1, 0}, MaxResults: 10, FileFilter: "cmd/*",
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "cmd/main.go", filtered[0].FilePath)

	none, err := store.SearchSimilar(ctx, SearchQuery{
		ProjectID: project, Embedding: []float32{1, 0}, MaxResults: 10, MinSimilarity: 0.99,
	})
	require.NoError(t, err)
	assert.Empty(t, none)

	deleted, err := store.DeleteProjectEmbeddings(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestPostgres_MemoriesAndPatterns(t *testing.T) {
	store, project := setupPostgres(t)
	ctx := context.Background()

	first, err := store.CreateMemory(ctx, &types.Memory{
		ProjectID: project, MemoryType: types.MemoryFeedback, Content: map[string]any{"note": "first"},
	})
	require.NoError(t, err)
	second, err := store.CreateMemory(ctx, &types.Memory{
		ProjectID: project, MemoryType: types.MemoryInsight, Content: map[string]any{"note": "second"},
		Embedding: []float32{0.5, 0.5},
	})
	require.NoError(t, err)

	memories, err := store.GetMemories(ctx, project, "", 0)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, second, memories[0].ID)
	assert.Equal(t, first, memories[1].ID)
	assert.Equal(t, []float32{0.5, 0.5}, memories[0].Embedding)

	content := json.RawMessage(`"prefer small interfaces"`)
	_, err = store.RecordPatternOutcome(ctx, PatternOutcome{ProjectID: project, PatternType: "design", Content: content})
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := store.RecordPatternOutcome(ctx, PatternOutcome{ProjectID: project, PatternType: "design", Content: content, Success: true})
	require.NoError(t, err)
	assert.Equal(t, 1, p.SuccessCount)

	patterns, err := store.GetLearnedPatterns(ctx, project, "design")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "prefer small interfaces", patterns[0].ContentString())
}
