package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codememory/internal/embedder"
	"github.com/dshills/codememory/pkg/types"
)

func TestFormatBlock(t *testing.T) {
	got := FormatBlock(types.SearchMatch{FilePath: "pkg/a.go", Content: "func A() {}", Similarity: 0.9163})
	assert.Equal(t, "## pkg/a.go (similarity: 0.92)\n```\nfunc A() {}\n```\n", got)
}

func TestPackBlocks(t *testing.T) {
	blocks := []Block{
		{Text: "a", Source: "a.go", Tokens: 100},
		{Text: "b", Source: "b.go", Tokens: 300},
		{Text: "c", Source: "c.go", Tokens: 10},
	}

	tests := []struct {
		name      string
		maxTokens int
		want      []string
		wantUsed  int
	}{
		{"everything fits", 1000, []string{"a.go", "b.go", "c.go"}, 410},
		{"exact fit", 400, []string{"a.go", "b.go"}, 400},
		{"stops at first block that does not fit", 150, []string{"a.go"}, 100},
		{"nothing fits", 50, nil, 0},
		{"zero budget", 0, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, used := PackBlocks(blocks, tt.maxTokens)
			var sources []string
			for _, b := range accepted {
				sources = append(sources, b.Source)
			}
			assert.Equal(t, tt.want, sources)
			assert.Equal(t, tt.wantUsed, used)
			assert.LessOrEqual(t, used, tt.maxTokens)
			if len(accepted) < len(blocks) {
				assert.Greater(t, used+blocks[len(accepted)].Tokens, tt.maxTokens)
			}
		})
	}
}

func TestGetRelevantContext(t *testing.T) {
	store := &fakeStore{matches: sampleMatches()}
	s := NewSearcher(store, &fakeEmbedder{tokens: 100})

	text, sources, err := s.GetRelevantContext(context.Background(), "p1", "login flow", 5, 250)
	require.NoError(t, err)

	assert.Equal(t, MinContextSimilarity, store.lastQuery.MinSimilarity)
	assert.Equal(t, 5, store.lastQuery.MaxResults)
	assert.Equal(t, []string{"auth/login.go", "auth/session.go"}, sources)

	matches := sampleMatches()
	want := FormatBlock(matches[0]) + "\n" + FormatBlock(matches[1])
	assert.Equal(t, want, text)
}

func TestGetRelevantContext_StopsAtFirstOversizedBlock(t *testing.T) {
	store := &fakeStore{matches: sampleMatches()}
	emb := &fakeEmbedder{countFunc: func(text string) int {
		if strings.Contains(text, "session.go") {
			return 500
		}
		return 100
	}}
	s := NewSearcher(store, emb)

	_, sources, err := s.GetRelevantContext(context.Background(), "p1", "login", 10, 250)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth/login.go"}, sources)
}

func TestGetRelevantContext_JoinedTextWithinBudget(t *testing.T) {
	local := embedder.NewLocalProvider(32)

	var matches []types.SearchMatch
	budget := 0
	for i := 0; i < 8; i++ {
		m := types.SearchMatch{
			ID:         fmt.Sprintf("%d", i),
			FilePath:   fmt.Sprintf("pkg/f%d.go", i),
			Similarity: 0.9,
		}
		// pad the rendered block to a multiple of four runes
		m.Content = "x"
		for utf8.RuneCountInString(FormatBlock(m))%4 != 0 {
			m.Content += "x"
		}
		budget += local.CountTokens(FormatBlock(m))
		matches = append(matches, m)
	}

	s := NewSearcher(&fakeStore{matches: matches}, local)
	text, sources, err := s.GetRelevantContext(context.Background(), "p1", "anything", 10, budget)
	require.NoError(t, err)
	assert.NotEmpty(t, sources)
	assert.Less(t, len(sources), len(matches))
	assert.LessOrEqual(t, local.CountTokens(text), budget)
}

func TestGetRelevantContext_TrimsWhenJoinedTextOvershoots(t *testing.T) {
	store := &fakeStore{matches: sampleMatches()}
	// blocks are cheap alone but the joined text costs more than their sum
	emb := &fakeEmbedder{countFunc: func(text string) int {
		n := strings.Count(text, "## ")
		return 10 * n * n
	}}
	s := NewSearcher(store, emb)

	text, sources, err := s.GetRelevantContext(context.Background(), "p1", "login", 10, 45)
	require.NoError(t, err)
	assert.LessOrEqual(t, emb.CountTokens(text), 45)
	assert.Equal(t, []string{"auth/login.go", "auth/session.go"}, sources)
}

func TestGetRelevantContext_NoMatches(t *testing.T) {
	s := NewSearcher(&fakeStore{}, &fakeEmbedder{tokens: 1})

	text, sources, err := s.GetRelevantContext(context.Background(), "p1", "anything", 10, 1000)
	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)
}

func TestGetRelevantContext_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewSearcher(&fakeStore{}, &fakeEmbedder{})

	_, _, err := s.GetRelevantContext(ctx, "", "q", 10, 100)
	assert.ErrorIs(t, err, types.ErrEmptyProjectID)

	_, _, err = s.GetRelevantContext(ctx, "p1", "", 10, 100)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	failing := NewSearcher(&fakeStore{searchErr: errors.New("db down")}, &fakeEmbedder{})
	_, _, err = failing.GetRelevantContext(ctx, "p1", "q", 10, 100)
	assert.ErrorIs(t, err, ErrStoreFailed)
}

func samplePatterns() []types.LearnedPattern {
	return []types.LearnedPattern{
		{PatternType: "auth", SuccessCount: 3, PatternContent: json.RawMessage(`"wrap handlers with Login middleware"`)},
		{PatternType: "db", SuccessCount: 2, PatternContent: json.RawMessage(`{"tip":"batch inserts"}`)},
	}
}

func TestGetContextWithPatterns(t *testing.T) {
	store := &fakeStore{matches: sampleMatches(), patterns: samplePatterns()}
	s := NewSearcher(store, &fakeEmbedder{tokens: 100})

	result, err := s.GetContextWithPatterns(context.Background(), "p1", "add LOGIN check", 300)
	require.NoError(t, err)

	assert.Equal(t, ContextMaxResults, store.lastQuery.MaxResults)
	// 70% of 300 leaves room for two 100-token blocks
	assert.Equal(t, []string{"auth/login.go", "auth/session.go"}, result.Sources)
	require.Len(t, result.Patterns, 1)
	assert.Equal(t, "auth", result.Patterns[0].PatternType)

	matches := sampleMatches()
	code := FormatBlock(matches[0]) + "\n" + FormatBlock(matches[1])
	want := "## Learned Patterns from Previous Work\n" +
		"- **auth** (used 3 times): wrap handlers with Login middleware" +
		"\n\n" + code
	assert.Equal(t, want, result.Context)
}

func TestGetContextWithPatterns_NoRelevantPatterns(t *testing.T) {
	store := &fakeStore{matches: sampleMatches(), patterns: samplePatterns()}
	s := NewSearcher(store, &fakeEmbedder{tokens: 100})

	result, err := s.GetContextWithPatterns(context.Background(), "p1", "refactor logging", 1000)
	require.NoError(t, err)
	assert.Empty(t, result.Patterns)
	assert.False(t, strings.HasPrefix(result.Context, "## Learned Patterns"))
	assert.Len(t, result.Sources, 3)
}

func TestGetContextWithPatterns_PatternsOnly(t *testing.T) {
	store := &fakeStore{patterns: samplePatterns()}
	s := NewSearcher(store, &fakeEmbedder{tokens: 100})

	result, err := s.GetContextWithPatterns(context.Background(), "p1", "batch", 1000)
	require.NoError(t, err)
	assert.Equal(t, "## Learned Patterns from Previous Work\n- **db** (used 2 times): {\"tip\":\"batch inserts\"}\n\n", result.Context)
	assert.Empty(t, result.Sources)
}

func TestGetContextWithPatterns_PatternStoreError(t *testing.T) {
	store := &fakeStore{matches: sampleMatches(), patternErr: errors.New("timeout")}
	s := NewSearcher(store, &fakeEmbedder{tokens: 1})

	_, err := s.GetContextWithPatterns(context.Background(), "p1", "login", 1000)
	assert.ErrorIs(t, err, ErrStoreFailed)
}
