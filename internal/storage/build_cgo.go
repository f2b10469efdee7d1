//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package storage

// Compiled with CGO and the sqlite_vec tag. Similarity search ranks in SQL
// with vec_distance_cosine, so the sqlite-vec extension must be loadable by
// the driver.
//
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by mattn/go-sqlite3
	DriverName = "sqlite3"

	// VectorExtensionAvailable routes searchVector to the SQL ranking path
	VectorExtensionAvailable = true

	// BuildMode is reported by `codememory version`
	BuildMode = "cgo"
)
