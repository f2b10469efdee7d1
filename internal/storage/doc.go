// Package storage persists code chunks with their embeddings, project
// memories and learned patterns, and answers nearest-neighbor queries.
//
// Two backends implement Storage:
//
//   - SQLiteStorage: embedded database with semver-tracked migrations.
//     The default build uses modernc.org/sqlite and ranks vectors in Go.
//     Building with the sqlite_vec tag switches to github.com/mattn/go-sqlite3
//     and ranks in SQL with vec_distance_cosine.
//   - PostgresStorage: PostgreSQL with the pgvector extension, ranked by the
//     <=> cosine distance operator over a pgxpool connection pool.
//
// Open picks a backend from Config.
//
// # Chunks
//
// A chunk is identified by (project, file path, chunk index). UpsertEmbedding
// is a single INSERT ... ON CONFLICT ... DO UPDATE statement, so concurrent
// writers of the same key never lose an update and the row id never changes:
//
//	id, err := store.UpsertEmbedding(ctx, &types.CodeChunk{
//	    ProjectID:  "billing",
//	    FilePath:   "internal/invoice/total.go",
//	    ChunkIndex: 0,
//	    Content:    src,
//	    Embedding:  vec,
//	})
//
// GetChunkHashes lets the indexer skip chunks whose content and embedding
// model are unchanged, and DeleteFileChunksFrom drops the tail of a file that
// shrank.
//
// # Search
//
// SearchSimilar returns matches with similarity = 1 - cosine distance,
// filtered by project, minimum similarity and an optional file glob, ordered
// by distance then id:
//
//	matches, err := store.SearchSimilar(ctx, storage.SearchQuery{
//	    ProjectID:     "billing",
//	    Embedding:     queryVec,
//	    MaxResults:    10,
//	    MinSimilarity: 0.5,
//	    FileFilter:    "internal/*",
//	})
//
// # Memories and patterns
//
// Memories are immutable and read newest first. Learned patterns carry
// success and failure counters updated through RecordPatternOutcome and are
// read most successful first, at most MaxLearnedPatterns at a time.
package storage
