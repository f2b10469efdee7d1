package embedder

import (
	"context"
	"errors"
	"sync/atomic"
)

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits       int64
	Misses     int64
	DiskErrors int64
}

// CachedEmbedder layers an in-memory LRU and an optional disk cache over
// another Embedder. Cache failures never fail an embedding; they are counted
// in Stats.
type CachedEmbedder struct {
	Embedder

	mem  *Cache
	disk *DiskCache

	hits, misses, diskErrors atomic.Int64
}

// WithCache wraps e. Either cache may be nil.
func WithCache(e Embedder, mem *Cache, disk *DiskCache) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: e,
		mem:      mem,
		disk:     disk,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	key := CacheKey(c.Embedder, text)
	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}

	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		keys[i] = CacheKey(c.Embedder, text)
		if vec, ok := c.lookup(keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vecs, err := c.Embedder.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pending) {
		return nil, errors.Join(ErrProviderFailed, ErrDimensionMismatch)
	}

	for j, i := range missing {
		out[i] = vecs[j]
		c.store(keys[i], vecs[j])
	}
	return out, nil
}

func (c *CachedEmbedder) lookup(key string) ([]float32, bool) {
	if c.mem != nil {
		if vec, ok := c.mem.Get(key); ok {
			c.hits.Add(1)
			return vec, true
		}
	}
	if c.disk != nil {
		vec, ok, err := c.disk.Get(key)
		if err != nil {
			c.diskErrors.Add(1)
		} else if ok {
			c.hits.Add(1)
			if c.mem != nil {
				c.mem.Set(key, vec)
			}
			return vec, true
		}
	}
	c.misses.Add(1)
	return nil, false
}

func (c *CachedEmbedder) store(key string, vec []float32) {
	if c.mem != nil {
		c.mem.Set(key, vec)
	}
	if c.disk != nil {
		if err := c.disk.Set(key, vec); err != nil {
			c.diskErrors.Add(1)
		}
	}
}

// Stats returns hit, miss and disk error counters
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		DiskErrors: c.diskErrors.Load(),
	}
}

// Close closes the disk cache and the wrapped embedder
func (c *CachedEmbedder) Close() error {
	var errs []error
	if c.disk != nil {
		errs = append(errs, c.disk.Close())
	}
	errs = append(errs, c.Embedder.Close())
	return errors.Join(errs...)
}
