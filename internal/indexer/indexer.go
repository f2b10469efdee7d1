package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codememory/internal/chunker"
	"github.com/dshills/codememory/internal/embedder"
	"github.com/dshills/codememory/internal/storage"
	"github.com/dshills/codememory/pkg/types"
)

const (
	DefaultWorkers     = 4
	DefaultMaxFileSize = 1 << 20
)

var (
	// ErrIndexingInProgress is returned when the project is already being indexed
	ErrIndexingInProgress = errors.New("indexing already in progress for project")

	// DefaultInclude lists the globs indexed when none are configured
	DefaultInclude = []string{"**/*.py", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.go"}

	// DefaultExclude lists directories never worth indexing
	DefaultExclude = []string{"**/.git/**", "**/node_modules/**", "**/vendor/**", "**/__pycache__/**", "**/dist/**"}
)

// Store is the part of storage.Storage the write path depends on
type Store interface {
	UpsertEmbedding(ctx context.Context, chunk *types.CodeChunk) (string, error)
	GetChunkHashes(ctx context.Context, projectID, filePath string) (map[int]storage.ChunkHash, error)
	DeleteFileChunksFrom(ctx context.Context, projectID, filePath string, fromIndex int) (int64, error)
}

// ChunkEmbedder embeds chunk contents in batches
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// modelNamer is implemented by embedders that can name the model behind
// their vectors. Chunks are re-embedded when the name changes.
type modelNamer interface {
	Provider() string
	Model() string
}

func embeddingModel(e ChunkEmbedder) string {
	if n, ok := e.(modelNamer); ok {
		return n.Provider() + "/" + n.Model()
	}
	return ""
}

// Config contains configuration for the indexer
type Config struct {
	Include     []string `mapstructure:"include" yaml:"include"`
	Exclude     []string `mapstructure:"exclude" yaml:"exclude"`
	Workers     int      `mapstructure:"workers" yaml:"workers"`
	MaxFileSize int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// FileInput is one file handed to IndexFiles
type FileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed    int
	FilesSkipped    int
	FilesFailed     int
	ChunksCreated   int
	ChunksUnchanged int
	ChunksDeleted   int
	Duration        time.Duration
	ErrorMessages   []string
}

// ProgressFunc is called after each file with the number of files done so far
type ProgressFunc func(done, total int, path string)

// Indexer coordinates the write path: detect language -> chunk -> hash -> embed -> upsert
type Indexer struct {
	chunker  *chunker.Chunker
	embedder ChunkEmbedder
	store    Store
	logger   *log.Logger
	config   Config

	projects  projectLocks
	fileLocks *keyedMutex
}

// New creates a new Indexer instance
func New(store Store, emb ChunkEmbedder, ch *chunker.Chunker, logger *log.Logger, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if len(cfg.Include) == 0 {
		cfg.Include = DefaultInclude
	}
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultExclude
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Indexer{
		chunker:   ch,
		embedder:  emb,
		store:     store,
		logger:    logger,
		config:    cfg,
		fileLocks: newKeyedMutex(),
	}
}

// IndexFiles chunks, embeds and stores the given files. Files with an empty
// path or content are skipped; a file that fails is recorded in the
// statistics and the rest of the batch continues.
func (idx *Indexer) IndexFiles(ctx context.Context, projectID string, files []FileInput) (*Statistics, error) {
	if projectID == "" {
		return nil, types.ErrEmptyProjectID
	}

	lock := idx.projects.get(projectID)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", ErrIndexingInProgress, projectID)
	}
	defer lock.Release()

	return idx.run(ctx, projectID, len(files), func(i int) (FileInput, error) {
		return files[i], nil
	}, nil)
}

// DirectoryOptions narrows a directory walk. Empty fields fall back to the
// indexer configuration.
type DirectoryOptions struct {
	Include  []string
	Exclude  []string
	Progress ProgressFunc
}

// IndexDirectory walks root, selects files with doublestar include/exclude
// globs matched against slash-separated paths relative to root, and indexes
// them under those relative paths.
func (idx *Indexer) IndexDirectory(ctx context.Context, projectID, root string, opts DirectoryOptions) (*Statistics, error) {
	if projectID == "" {
		return nil, types.ErrEmptyProjectID
	}

	lock := idx.projects.get(projectID)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", ErrIndexingInProgress, projectID)
	}
	defer lock.Release()

	include := opts.Include
	if len(include) == 0 {
		include = idx.config.Include
	}
	exclude := opts.Exclude
	if exclude == nil {
		exclude = idx.config.Exclude
	}

	paths, err := discoverFiles(root, include, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	idx.logger.Info("discovered files", "project", projectID, "root", root, "files", len(paths))

	return idx.run(ctx, projectID, len(paths), func(i int) (FileInput, error) {
		return idx.readFile(root, paths[i])
	}, opts.Progress)
}

// errSkipFile marks files that are deliberately not indexed
var errSkipFile = errors.New("file skipped")

func (idx *Indexer) readFile(root, rel string) (FileInput, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return FileInput{Path: rel}, err
	}
	if info.Size() > idx.config.MaxFileSize {
		return FileInput{Path: rel}, fmt.Errorf("%w: %d bytes exceeds limit", errSkipFile, info.Size())
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return FileInput{Path: rel}, err
	}
	if !utf8.Valid(data) {
		return FileInput{Path: rel}, fmt.Errorf("%w: not valid UTF-8", errSkipFile)
	}
	return FileInput{Path: rel, Content: string(data)}, nil
}

// counters are shared by the workers of one run
type counters struct {
	indexed, skipped, failed  atomic.Int32
	created, unchanged, stale atomic.Int32
	done                      atomic.Int32

	mu       sync.Mutex
	messages []string
}

func (c *counters) fail(path string, err error) {
	c.failed.Add(1)
	c.mu.Lock()
	c.messages = append(c.messages, fmt.Sprintf("%s: %v", path, err))
	c.mu.Unlock()
}

// run indexes total files obtained from load with a bounded worker pool
func (idx *Indexer) run(ctx context.Context, projectID string, total int, load func(i int) (FileInput, error), progress ProgressFunc) (*Statistics, error) {
	startTime := time.Now()
	c := &counters{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Workers)

	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			file, err := load(i)
			path := file.Path

			switch {
			case errors.Is(err, errSkipFile):
				c.skipped.Add(1)
				idx.logger.Debug("skipping file", "project", projectID, "reason", err)
			case err != nil:
				c.fail(path, err)
			case file.Path == "" || file.Content == "":
				c.skipped.Add(1)
			default:
				if err := idx.indexFile(gctx, projectID, file, c); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					c.fail(path, err)
					idx.logger.Warn("failed to index file", "project", projectID, "path", path, "err", err)
				}
			}

			done := int(c.done.Add(1))
			if progress != nil {
				progress(done, total, path)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &Statistics{
		FilesIndexed:    int(c.indexed.Load()),
		FilesSkipped:    int(c.skipped.Load()),
		FilesFailed:     int(c.failed.Load()),
		ChunksCreated:   int(c.created.Load()),
		ChunksUnchanged: int(c.unchanged.Load()),
		ChunksDeleted:   int(c.stale.Load()),
		Duration:        time.Since(startTime),
		ErrorMessages:   c.messages,
	}
	if stats.ErrorMessages == nil {
		stats.ErrorMessages = []string{}
	}

	idx.logger.Info("indexed files",
		"project", projectID,
		"files", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"chunks", stats.ChunksCreated,
		"unchanged", stats.ChunksUnchanged,
		"duration", stats.Duration)

	return stats, nil
}

// indexFile stores one file. Chunks whose stored hash and embedding model
// match are neither re-embedded nor rewritten, and chunks past the new end of the file are
// deleted. Writers of the same file are serialized.
func (idx *Indexer) indexFile(ctx context.Context, projectID string, file FileInput, c *counters) error {
	unlock := idx.fileLocks.Lock(projectID + "\x00" + file.Path)
	defer unlock()

	language := DetectLanguage(file.Path)
	chunks := idx.chunker.Chunk(file.Content, language)

	stored, err := idx.store.GetChunkHashes(ctx, projectID, file.Path)
	if err != nil {
		return fmt.Errorf("failed to load chunk hashes: %w", err)
	}

	model := embeddingModel(idx.embedder)
	pending := make([]*types.CodeChunk, 0, len(chunks))
	for _, ch := range chunks {
		hash := chunker.ComputeChunkHash(ch.Content)
		if prev, ok := stored[ch.Index]; ok && prev.ContentHash == hash && prev.EmbeddingModel == model {
			c.unchanged.Add(1)
			continue
		}
		pending = append(pending, &types.CodeChunk{
			ProjectID:      projectID,
			FilePath:       file.Path,
			ChunkIndex:     ch.Index,
			Content:        ch.Content,
			ContentHash:    hash,
			EmbeddingModel: model,
			Language:       language,
		})
	}

	for start := 0; start < len(pending); start += embedder.DefaultBatchSize {
		end := min(start+embedder.DefaultBatchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}
		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: got %d embeddings for %d chunks", embedder.ErrProviderFailed, len(vectors), len(batch))
		}

		for i, ch := range batch {
			ch.Embedding = vectors[i]
			if _, err := idx.store.UpsertEmbedding(ctx, ch); err != nil {
				return fmt.Errorf("failed to store chunk %d: %w", ch.ChunkIndex, err)
			}
			c.created.Add(1)
		}
	}

	if hasStaleTail(stored, len(chunks)) {
		removed, err := idx.store.DeleteFileChunksFrom(ctx, projectID, file.Path, len(chunks))
		if err != nil {
			return fmt.Errorf("failed to delete stale chunks: %w", err)
		}
		c.stale.Add(int32(removed))
	}

	c.indexed.Add(1)
	idx.logger.Debug("indexed file", "project", projectID, "path", file.Path,
		"language", language, "chunks", len(chunks), "embedded", len(pending))
	return nil
}

func hasStaleTail(stored map[int]storage.ChunkHash, count int) bool {
	for i := range stored {
		if i >= count {
			return true
		}
	}
	return false
}

// discoverFiles returns slash-separated paths under root that match an
// include glob and no exclude glob, in walk order
func discoverFiles(root string, include, exclude []string) ([]string, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || matchAny(exclude, rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matchAny(include, rel) && !matchAny(exclude, rel) {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
