package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/codememory/pkg/types"
)

const (
	// MinContextSimilarity is the similarity floor for context assembly
	MinContextSimilarity = 0.3

	// ContextMaxResults is the search width used by GetContextWithPatterns
	ContextMaxResults = 10

	// CodeBudgetRatio is the share of the token budget given to code when
	// patterns are included
	CodeBudgetRatio = 0.7

	// DefaultContextTokens is the budget used when callers pass none
	DefaultContextTokens = 2000
)

// Block is one formatted search match ready for packing
type Block struct {
	Text   string
	Source string
	Tokens int
}

// FormatBlock renders a match as a markdown section with a fenced code body
func FormatBlock(m types.SearchMatch) string {
	return fmt.Sprintf("## %s (similarity: %.2f)\n```\n%s\n```\n", m.FilePath, m.Similarity, m.Content)
}

// PackBlocks accepts blocks in order while their summed token counts stay
// within maxTokens. Packing stops at the first block that does not fit, even
// if a later, smaller block would.
func PackBlocks(blocks []Block, maxTokens int) (accepted []Block, used int) {
	for _, b := range blocks {
		if used+b.Tokens > maxTokens {
			break
		}
		accepted = append(accepted, b)
		used += b.Tokens
	}
	return accepted, used
}

// GetRelevantContext searches the project for query and packs the matches
// into at most maxTokens, measured on the joined text. It returns the joined text and the file path of
// each accepted block. No match yields "" and no sources.
func (s *Searcher) GetRelevantContext(ctx context.Context, projectID, query string, maxResults, maxTokens int) (string, []string, error) {
	if projectID == "" {
		return "", nil, types.ErrEmptyProjectID
	}
	if strings.TrimSpace(query) == "" {
		return "", nil, ErrEmptyQuery
	}

	matches, err := s.search(ctx, projectID, query, maxResults, MinContextSimilarity, "")
	if err != nil {
		return "", nil, err
	}
	if len(matches) == 0 {
		return "", []string{}, nil
	}

	// every block after the first is charged for its separator
	blocks := make([]Block, len(matches))
	for i, m := range matches {
		text := FormatBlock(m)
		charged := text
		if i > 0 {
			charged = blockSeparator + text
		}
		blocks[i] = Block{Text: text, Source: m.FilePath, Tokens: s.embedder.CountTokens(charged)}
	}

	accepted, _ := PackBlocks(blocks, maxTokens)
	text := joinBlocks(accepted)
	// a counter that is not subadditive can still overshoot on the joined text
	for len(accepted) > 0 && s.embedder.CountTokens(text) > maxTokens {
		accepted = accepted[:len(accepted)-1]
		text = joinBlocks(accepted)
	}

	sources := make([]string, len(accepted))
	for i, b := range accepted {
		sources[i] = b.Source
	}
	return text, sources, nil
}

const blockSeparator = "\n"

func joinBlocks(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, blockSeparator)
}

// GetContextWithPatterns assembles code context within 70% of maxTokens and
// prepends the learned patterns that share a word with the query.
func (s *Searcher) GetContextWithPatterns(ctx context.Context, projectID, query string, maxTokens int) (*types.ContextResult, error) {
	codeContext, sources, err := s.GetRelevantContext(ctx, projectID, query, ContextMaxResults, int(float64(maxTokens)*CodeBudgetRatio))
	if err != nil {
		return nil, err
	}

	patterns, err := s.store.GetLearnedPatterns(ctx, projectID, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	selected := SelectPatterns(patterns, query)

	full := codeContext
	if len(selected) > 0 {
		full = FormatPatternSection(selected) + "\n\n" + codeContext
	}

	return &types.ContextResult{
		Context:  full,
		Sources:  sources,
		Patterns: selected,
	}, nil
}
