// Package types provides shared type definitions for codememory.
//
// # Core Types
//
// CodeChunk is a persisted slice of a source file with its embedding. It is
// keyed by (ProjectID, FilePath, ChunkIndex):
//
//	chunk := &types.CodeChunk{
//	    ProjectID:  "acme",
//	    FilePath:   "internal/auth/login.go",
//	    ChunkIndex: 0,
//	    Content:    body,
//	    Embedding:  vec,
//	}
//	chunk.ComputeContentHash()
//
// Memory records an outcome, insight or feedback for a project and is never
// updated after creation. LearnedPattern carries monotone success and failure
// counters and is retrieved in success-count order.
//
// # Search Results
//
// SearchMatch carries the cosine similarity (1 - distance) of a stored chunk
// against a query vector. ContextResult bundles assembled context text, the
// source files it came from, and any learned patterns that were selected.
package types
