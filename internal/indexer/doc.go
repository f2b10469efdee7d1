// Package indexer runs the write path of the code memory: it turns file
// contents into stored, embedded chunks.
//
// For every file the indexer detects the language from the extension, chunks
// the content, and compares each chunk's SHA-256 hash with the hash already
// stored for the same (project, file, chunk index). Only changed chunks are
// embedded and upserted, so re-indexing an unchanged tree makes no embedding
// calls. Chunks left over from a longer previous version of the file are
// deleted.
//
//	idx := indexer.New(store, emb, ch, logger, indexer.Config{})
//	stats, err := idx.IndexDirectory(ctx, "my-project", "/src/my-project", indexer.DirectoryOptions{})
//
// Files are processed by a bounded errgroup. One project is indexed by at
// most one call at a time; a concurrent call fails fast with
// ErrIndexingInProgress. Writers of the same file are serialized so the last
// upsert of a chunk wins without duplicating rows.
//
// A failure in one file is recorded in Statistics and does not stop the
// batch. Cancelling the context stops the run and returns the context error.
package indexer
