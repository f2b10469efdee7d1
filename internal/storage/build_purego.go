//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Pure Go build (the default). Embeddings are loaded per project and ranked
// by cosine similarity in process, so no C toolchain is needed.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite
	DriverName = "sqlite"

	// VectorExtensionAvailable is false: ranking happens in Go
	VectorExtensionAvailable = false

	// BuildMode is reported by `codememory version`
	BuildMode = "purego"
)
