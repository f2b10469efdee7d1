// Package embedder turns text into fixed-dimension vectors and estimates token
// counts for context budgeting.
//
// # Providers
//
//   - local:  offline feature-hashing embedder, deterministic, no network
//   - openai: OpenAI embeddings via github.com/openai/openai-go
//   - gemini: Gemini embeddings via google.golang.org/genai
//   - jina:   Jina AI embeddings over plain HTTP
//
// Remote providers request the configured dimension (384 by default) so every
// provider fits the same vector column. "auto" selects a provider from the API
// keys present in the environment and falls back to local.
//
// # Basic Usage
//
//	emb, err := embedder.New(ctx, embedder.Config{Provider: "auto"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vec, err := emb.Embed(ctx, "func ParseFile(path string) error")
//	tokens := emb.CountTokens(text)
//
// # Caching
//
// New wraps the provider in a CachedEmbedder: an expiring in-memory LRU keyed
// by provider, model, dimension and the SHA-256 of the text, and optionally a
// bbolt file (CachePath) that survives restarts. Cache failures are counted,
// never returned.
//
// # Error Handling
//
// Remote calls are retried with exponential backoff (3 attempts, 100ms to 5s).
// Client errors such as 401 or 400 are not retried. Final failures wrap
// ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // embedding service unavailable
//	}
package embedder
