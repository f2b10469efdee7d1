package searcher

import (
	"fmt"
	"strings"

	"github.com/dshills/codememory/pkg/types"
)

// MaxSelectedPatterns caps how many patterns are added to a context
const MaxSelectedPatterns = 5

const patternHeader = "## Learned Patterns from Previous Work"

// SelectPatterns keeps, in input order, up to MaxSelectedPatterns patterns
// whose content contains at least one whitespace-separated word of query.
// Matching is a case-insensitive substring test with no stemming.
func SelectPatterns(patterns []types.LearnedPattern, query string) []types.LearnedPattern {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return []types.LearnedPattern{}
	}

	selected := make([]types.LearnedPattern, 0, MaxSelectedPatterns)
	for _, p := range patterns {
		if len(selected) == MaxSelectedPatterns {
			break
		}
		content := strings.ToLower(p.ContentString())
		for _, w := range words {
			if strings.Contains(content, w) {
				selected = append(selected, p)
				break
			}
		}
	}
	return selected
}

// FormatPatternSection renders patterns under the learned patterns header
func FormatPatternSection(patterns []types.LearnedPattern) string {
	lines := make([]string, 0, len(patterns)+1)
	lines = append(lines, patternHeader)
	for _, p := range patterns {
		lines = append(lines, fmt.Sprintf("- **%s** (used %d times): %s", p.PatternType, p.SuccessCount, p.ContentString()))
	}
	return strings.Join(lines, "\n")
}
