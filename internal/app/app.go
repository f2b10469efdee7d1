// Package app wires the configured storage, embedder, indexer, searcher and
// insights service into one value shared by the MCP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/dshills/codememory/internal/chunker"
	"github.com/dshills/codememory/internal/config"
	"github.com/dshills/codememory/internal/embedder"
	"github.com/dshills/codememory/internal/indexer"
	"github.com/dshills/codememory/internal/insights"
	"github.com/dshills/codememory/internal/llm"
	"github.com/dshills/codememory/internal/searcher"
	"github.com/dshills/codememory/internal/storage"
)

// App holds the long-lived components. The indexer and searcher share one
// embedder so vectors cached while indexing are reused by queries.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Store    storage.Storage
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Insights *insights.Service
}

// New builds every component from cfg. A missing LLM API key is not fatal:
// chat is disabled and everything else works.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	emb, err := embedder.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage, emb.Dimension())
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ch, err := chunker.New(cfg.Chunking)
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	completer, err := llm.New(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		logger.Warn("chat disabled", "reason", err)
		completer = nil
	case err != nil:
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	srch := searcher.NewSearcher(store, emb)

	logger.Debug("components ready",
		"storage", cfg.Storage.Driver,
		"embedder", emb.Provider(),
		"model", emb.Model(),
		"dimension", emb.Dimension())

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Embedder: emb,
		Indexer:  indexer.New(store, emb, ch, logger.WithPrefix("indexer"), cfg.Index),
		Searcher: srch,
		Insights: insights.New(srch, store, completer, logger.WithPrefix("insights")),
	}, nil
}

// Close releases the store and the embedder
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.Embedder.Close())
}
