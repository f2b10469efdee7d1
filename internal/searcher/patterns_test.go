package searcher

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/codememory/pkg/types"
)

func pattern(kind, content string, uses int) types.LearnedPattern {
	raw, _ := json.Marshal(content)
	return types.LearnedPattern{PatternType: kind, PatternContent: raw, SuccessCount: uses}
}

func TestSelectPatterns(t *testing.T) {
	patterns := []types.LearnedPattern{
		pattern("testing", "Use table driven tests", 4),
		pattern("errors", "Wrap errors with %w", 3),
		pattern("naming", "Short receiver names", 1),
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"case insensitive", "add TESTS for parser", []string{"testing"}},
		{"substring of a word", "wrap", []string{"errors"}},
		{"any word matches", "names and errors", []string{"errors", "naming"}},
		{"no overlap", "deploy pipeline", []string{}},
		{"empty query", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPatterns(patterns, tt.query)
			kinds := make([]string, 0, len(got))
			for _, p := range got {
				kinds = append(kinds, p.PatternType)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestSelectPatterns_Cap(t *testing.T) {
	var patterns []types.LearnedPattern
	for i := 0; i < 12; i++ {
		patterns = append(patterns, pattern(fmt.Sprintf("p%d", i), "retry with backoff", 12-i))
	}

	got := SelectPatterns(patterns, "backoff")
	assert.Len(t, got, MaxSelectedPatterns)
	assert.Equal(t, "p0", got[0].PatternType)
	assert.Equal(t, "p4", got[4].PatternType)
}

func TestSelectPatterns_ObjectContent(t *testing.T) {
	p := types.LearnedPattern{PatternType: "api", PatternContent: json.RawMessage(`{"Endpoint":"/v1/Users"}`)}

	assert.Len(t, SelectPatterns([]types.LearnedPattern{p}, "users"), 1)
	assert.Len(t, SelectPatterns([]types.LearnedPattern{p}, "endpoint"), 1)
	assert.Empty(t, SelectPatterns([]types.LearnedPattern{p}, "orders"))
}

func TestFormatPatternSection(t *testing.T) {
	got := FormatPatternSection([]types.LearnedPattern{
		pattern("testing", "Use table driven tests", 4),
		{PatternType: "config", SuccessCount: 1, PatternContent: json.RawMessage(`{"env":true}`)},
	})
	want := "## Learned Patterns from Previous Work\n" +
		"- **testing** (used 4 times): Use table driven tests\n" +
		"- **config** (used 1 times): {\"env\":true}"
	assert.Equal(t, want, got)
}
