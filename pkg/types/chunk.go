package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Chunk is one segment produced by the chunker, before it is embedded.
type Chunk struct {
	Content string
	Index   int // 0-based position within the file

	// Rune offsets into the original content, End exclusive
	Start int
	End   int
}

// CodeChunk is a persisted slice of a file's content together with its embedding
type CodeChunk struct {
	// Identification
	ID         string
	ProjectID  string
	FilePath   string
	ChunkIndex int

	// Content
	Content        string
	ContentHash    string // hex SHA-256 of Content
	EmbeddingModel string // provider/model that produced Embedding
	Language       string // empty when unknown
	Embedding      []float32

	// Timestamps
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HashContent returns the hex encoded SHA-256 digest of content
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ComputeContentHash sets ContentHash from Content
func (c *CodeChunk) ComputeContentHash() {
	c.ContentHash = HashContent(c.Content)
}

// Validate checks the fields required for an upsert
func (c *CodeChunk) Validate() error {
	if c.ProjectID == "" {
		return ErrEmptyProjectID
	}
	if c.FilePath == "" {
		return ErrEmptyFilePath
	}
	if c.ChunkIndex < 0 {
		return ErrInvalidIndex
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if len(c.Embedding) == 0 {
		return ErrMissingVector
	}
	return nil
}
