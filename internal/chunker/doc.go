// Package chunker divides source files into bounded chunks for embedding and search.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, ch := range c.Chunk(content, "go") {
//	    fmt.Printf("chunk %d: runes %d-%d\n", ch.Index, ch.Start, ch.End)
//	}
//
// # Chunking Strategy
//
// Sizes are measured in characters (runes). When the language is known the
// parser package reports where top-level declarations start; content is cut
// there and neighbouring segments are merged greedily while they fit in
// MaxChunkSize. Structural chunks are contiguous and never overlap.
//
// A declaration larger than MaxChunkSize, or any content whose language is
// unknown, is split into fixed windows of MaxChunkSize characters where each
// window repeats the last Overlap characters of the previous one.
//
// With the defaults (512/50) a 1000 character plain-text file yields windows
// starting at 0, 462 and 924.
//
// # Hashing
//
// ComputeChunkHash returns the hex SHA-256 of a chunk. The indexer compares
// it with the stored hash to skip re-embedding unchanged chunks.
package chunker
