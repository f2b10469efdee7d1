package embedder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvOpenAIAPIKey, EnvGeminiAPIKey, EnvGoogleAPIKey, EnvJinaAPIKey} {
		t.Setenv(k, "")
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no keys", nil, ProviderLocal},
		{"openai key", map[string]string{EnvOpenAIAPIKey: "k"}, ProviderOpenAI},
		{"gemini key", map[string]string{EnvGeminiAPIKey: "k"}, ProviderGemini},
		{"google key", map[string]string{EnvGoogleAPIKey: "k"}, ProviderGemini},
		{"jina key", map[string]string{EnvJinaAPIKey: "k"}, ProviderJina},
		{"openai wins", map[string]string{EnvOpenAIAPIKey: "k", EnvJinaAPIKey: "k"}, ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := DetectProvider(); got != tt.want {
				t.Errorf("DetectProvider() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("local with cache", func(t *testing.T) {
		emb, err := New(ctx, Config{Provider: "local", Dimension: 32, CacheSize: 10, CacheTTL: time.Minute})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer emb.Close()

		if _, ok := emb.(*CachedEmbedder); !ok {
			t.Errorf("expected *CachedEmbedder, got %T", emb)
		}
		if emb.Dimension() != 32 || emb.Provider() != ProviderLocal {
			t.Errorf("unexpected metadata %d/%s", emb.Dimension(), emb.Provider())
		}
	})

	t.Run("negative cache size disables caching", func(t *testing.T) {
		emb, err := New(ctx, Config{Provider: "LOCAL", CacheSize: -1})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := emb.(*LocalProvider); !ok {
			t.Errorf("expected *LocalProvider, got %T", emb)
		}
		if emb.Dimension() != DefaultDimension {
			t.Errorf("Dimension() = %d", emb.Dimension())
		}
	})

	t.Run("disk cache", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "emb.db")
		emb, err := New(ctx, Config{Provider: "local", CachePath: path})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := emb.Embed(ctx, "hello"); err != nil {
			t.Fatal(err)
		}
		if err := emb.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("auto falls back to local", func(t *testing.T) {
		clearProviderEnv(t)
		emb, err := New(ctx, Config{Provider: "auto", CacheSize: -1})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if emb.Provider() != ProviderLocal {
			t.Errorf("Provider() = %s", emb.Provider())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: "word2vec"})
		if !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("error = %v, want ErrUnsupportedModel", err)
		}
	})

	t.Run("openai without key", func(t *testing.T) {
		clearProviderEnv(t)
		_, err := New(ctx, Config{Provider: "openai"})
		if !errors.Is(err, ErrNoProviderEnabled) {
			t.Errorf("error = %v, want ErrNoProviderEnabled", err)
		}
	})
}
