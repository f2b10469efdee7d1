package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codememory/internal/config"
	"github.com/dshills/codememory/internal/indexer"
	"github.com/dshills/codememory/internal/insights"
	"github.com/dshills/codememory/internal/searcher"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 32
	cfg.LLM.APIKey = ""
	return cfg
}

func TestNew_WithoutLLMKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	a, err := New(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 32, a.Embedder.Dimension())
	assert.NotNil(t, a.Indexer)
	assert.NotNil(t, a.Searcher)

	// chat degrades to the fixed reply when nothing is indexed
	resp, err := a.Insights.Chat(context.Background(), "proj", "anything?", nil)
	require.NoError(t, err)
	assert.Equal(t, insights.NoContextReply, resp.Response)
}

func TestNew_IndexThenSearch(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	ctx := context.Background()

	a, err := New(ctx, testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Indexer.IndexFiles(ctx, "proj", []indexer.FileInput{
		{Path: "auth/login.py", Content: "def login(user, password):\n    return check_password(user, password)\n"},
	})
	require.NoError(t, err)

	resp, err := a.Searcher.Search(ctx, searcher.SearchRequest{
		ProjectID:     "proj",
		Query:         "login password",
		MinSimilarity: 0.1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "auth/login.py", resp.Results[0].FilePath)
}

func TestNew_BadStorageDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "mongo"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNew_UnknownLLMProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "llama"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
