package types

import "errors"

// Domain errors for type validation
var (
	// Chunk errors
	ErrEmptyProjectID = errors.New("project ID cannot be empty")
	ErrEmptyFilePath  = errors.New("file path cannot be empty")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrInvalidIndex   = errors.New("chunk index must be >= 0")
	ErrMissingVector  = errors.New("embedding vector is required")

	// Memory and pattern errors
	ErrInvalidMemoryType = errors.New("invalid memory type")
	ErrEmptyPatternType  = errors.New("pattern type cannot be empty")

	// Search errors
	ErrInvalidSimilarity = errors.New("similarity must be between -1 and 1")
)
