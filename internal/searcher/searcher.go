package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/codememory/internal/embedder"
	"github.com/dshills/codememory/internal/storage"
	"github.com/dshills/codememory/pkg/types"
)

const (
	DefaultMaxResults    = 10
	MaxResultsLimit      = 100
	DefaultMinSimilarity = 0.5
	DefaultCacheTTL      = 5 * time.Minute
	queryCacheSize       = 1000
)

var (
	// ErrEmptyQuery is returned when a search or context request has no query text
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrStoreFailed wraps failures of the vector store
	ErrStoreFailed = errors.New("vector store failed")
)

// Store is the part of storage.Storage the read path depends on
type Store interface {
	SearchSimilar(ctx context.Context, query storage.SearchQuery) ([]types.SearchMatch, error)
	GetLearnedPatterns(ctx context.Context, projectID, patternType string) ([]types.LearnedPattern, error)
}

// QueryEmbedder embeds query text and counts tokens of assembled context
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	CountTokens(text string) int
}

// SearchRequest contains parameters for an ad-hoc code search
type SearchRequest struct {
	ProjectID     string
	Query         string
	MaxResults    int
	MinSimilarity float64
	FileFilter    string
	UseCache      bool
	CacheTTL      time.Duration
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results  []types.SearchMatch
	Duration time.Duration
	CacheHit bool
}

// cacheEntry represents cached results with an expiration time
type cacheEntry struct {
	results   []types.SearchMatch
	expiresAt time.Time
}

// Searcher embeds queries, runs similarity search and assembles context
type Searcher struct {
	store    Store
	embedder QueryEmbedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store Store, emb QueryEmbedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](queryCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		store:    store,
		embedder: emb,
		cache:    cache,
	}
}

// Search embeds the query and returns the nearest chunks of the project
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			return &SearchResponse{Results: cached, CacheHit: true, Duration: time.Since(startTime)}, nil
		}
	}

	results, err := s.search(ctx, req.ProjectID, req.Query, req.MaxResults, req.MinSimilarity, req.FileFilter)
	if err != nil {
		return nil, err
	}

	if req.UseCache && len(results) > 0 {
		s.storeInCache(req, results)
	}

	return &SearchResponse{Results: results, Duration: time.Since(startTime)}, nil
}

// search is the uncached embed-then-query path shared with context assembly
func (s *Searcher) search(ctx context.Context, projectID, query string, maxResults int, minSimilarity float64, fileFilter string) ([]types.SearchMatch, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrapEmbedError(err)
	}

	results, err := s.store.SearchSimilar(ctx, storage.SearchQuery{
		ProjectID:     projectID,
		Embedding:     vector,
		MaxResults:    maxResults,
		MinSimilarity: minSimilarity,
		FileFilter:    fileFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	return results, nil
}

func wrapEmbedError(err error) error {
	if errors.Is(err, embedder.ErrProviderFailed) {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	return fmt.Errorf("failed to embed query: %w: %w", embedder.ErrProviderFailed, err)
}

// validateRequest ensures the request is valid and fills defaults
func validateRequest(req *SearchRequest) error {
	if req.ProjectID == "" {
		return types.ErrEmptyProjectID
	}
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if req.MinSimilarity < -1 || req.MinSimilarity > 1 {
		return types.ErrInvalidSimilarity
	}

	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}
	if req.MaxResults > MaxResultsLimit {
		req.MaxResults = MaxResultsLimit
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// checkCache returns a copy of unexpired cached results
func (s *Searcher) checkCache(req SearchRequest) ([]types.SearchMatch, bool) {
	hash := computeQueryHash(req)
	entry, found := s.cache.Get(hash)
	if !found {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(hash)
		return nil, false
	}
	return copyMatches(entry.results), true
}

// storeInCache saves a copy of results so callers cannot mutate the cache
func (s *Searcher) storeInCache(req SearchRequest, results []types.SearchMatch) {
	s.cache.Add(computeQueryHash(req), &cacheEntry{
		results:   copyMatches(results),
		expiresAt: time.Now().Add(req.CacheTTL),
	})
}

func copyMatches(src []types.SearchMatch) []types.SearchMatch {
	dst := make([]types.SearchMatch, len(src))
	copy(dst, src)
	return dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.ProjectID)
	data.WriteString("|")
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(req.FileFilter)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d|%.4f", req.MaxResults, req.MinSimilarity))
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops cached results. The LRU cannot be filtered by
// project, so the whole cache is purged.
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}

// CacheLen reports the number of cached queries
func (s *Searcher) CacheLen() int {
	return s.cache.Len()
}
