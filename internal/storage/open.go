package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Supported storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a storage backend
type Config struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	Path        string `mapstructure:"path" yaml:"path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	MaxConns    int    `mapstructure:"max_conns" yaml:"max_conns"`
}

// Open constructs the configured backend. dimension is the embedding width,
// used by backends with typed vector columns.
func Open(ctx context.Context, cfg Config, dimension int) (Storage, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return NewSQLiteStorage(cfg.Path)
	case DriverPostgres, "postgresql":
		return NewPostgresStorage(ctx, cfg.DatabaseURL, cfg.MaxConns, dimension)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
