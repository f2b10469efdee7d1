package chunker

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dshills/codememory/internal/parser"
	"github.com/dshills/codememory/pkg/types"
)

const (
	// DefaultMaxChunkSize is the maximum chunk length in characters
	DefaultMaxChunkSize = 512

	// DefaultOverlap is the number of characters shared by consecutive windows
	DefaultOverlap = 50

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// ErrInvalidConfig is returned when size and overlap are inconsistent
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config controls chunk sizes
type Config struct {
	MaxChunkSize int `mapstructure:"max_chunk_size" yaml:"max_chunk_size"`
	Overlap      int `mapstructure:"overlap" yaml:"overlap"`
}

// DefaultConfig returns the default chunking configuration
func DefaultConfig() Config {
	return Config{
		MaxChunkSize: DefaultMaxChunkSize,
		Overlap:      DefaultOverlap,
	}
}

// Validate checks that MaxChunkSize is positive and Overlap is in [0, MaxChunkSize-1]
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", ErrInvalidConfig, c.MaxChunkSize)
	}
	if c.Overlap < 0 || c.Overlap > c.MaxChunkSize-1 {
		return fmt.Errorf("%w: overlap must be between 0 and %d, got %d", ErrInvalidConfig, c.MaxChunkSize-1, c.Overlap)
	}
	return nil
}

// Chunker splits file content into bounded segments, preferring declaration
// boundaries when the language is known
type Chunker struct {
	cfg    Config
	parser *parser.Parser
}

// New creates a new Chunker instance
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		cfg:    cfg,
		parser: parser.New(),
	}, nil
}

// Config returns the chunker's configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits content into chunks no longer than MaxChunkSize characters.
// Empty content yields no chunks. Indices run from 0 without gaps.
func (c *Chunker) Chunk(content, language string) []types.Chunk {
	if content == "" {
		return nil
	}

	runes := []rune(content)

	var spans []span
	if bounds := c.parser.Boundaries(language, content); len(bounds) > 0 {
		spans = c.structuralSpans(content, len(runes), bounds)
	} else {
		spans = c.windowSpans(0, len(runes))
	}

	chunks := make([]types.Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, types.Chunk{
			Content: string(runes[s.start:s.end]),
			Index:   i,
			Start:   s.start,
			End:     s.end,
		})
	}
	return chunks
}

// span is a half-open rune range
type span struct {
	start, end int
}

func (s span) len() int {
	return s.end - s.start
}

// windowSpans covers [from, to) with fixed windows that overlap by cfg.Overlap
func (c *Chunker) windowSpans(from, to int) []span {
	if to <= from {
		return nil
	}

	step := c.cfg.MaxChunkSize - c.cfg.Overlap
	spans := make([]span, 0, (to-from)/step+1)
	for start := from; ; start += step {
		end := min(start+c.cfg.MaxChunkSize, to)
		spans = append(spans, span{start, end})
		if end == to {
			break
		}
	}
	return spans
}

// structuralSpans cuts content at declaration boundaries, then greedily merges
// neighbouring segments up to the size limit. A single declaration larger than
// the limit is split into windows.
func (c *Chunker) structuralSpans(content string, total int, bounds []parser.Boundary) []span {
	cuts := make([]int, 0, len(bounds)+2)
	cuts = append(cuts, 0)
	for _, b := range bounds {
		off := utf8.RuneCountInString(content[:b.Offset])
		if off > cuts[len(cuts)-1] && off < total {
			cuts = append(cuts, off)
		}
	}
	cuts = append(cuts, total)

	var (
		spans   []span
		current span
		open    bool
	)
	flush := func() {
		if open {
			spans = append(spans, current)
			open = false
		}
	}

	for i := 0; i+1 < len(cuts); i++ {
		seg := span{cuts[i], cuts[i+1]}

		switch {
		case seg.len() > c.cfg.MaxChunkSize:
			flush()
			spans = append(spans, c.windowSpans(seg.start, seg.end)...)
		case !open:
			current, open = seg, true
		case current.len()+seg.len() <= c.cfg.MaxChunkSize:
			current.end = seg.end
		default:
			flush()
			current, open = seg, true
		}
	}
	flush()

	return spans
}

// ComputeChunkHash computes the hex SHA-256 hash for a chunk's content
func ComputeChunkHash(content string) string {
	return types.HashContent(content)
}

// EstimateTokenCount estimates the number of tokens in a string, rounding up
// so that any non-empty text costs at least one token
func EstimateTokenCount(text string) int {
	return (utf8.RuneCountInString(text) + TokensPerChar - 1) / TokensPerChar
}
