package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps retry tests quick
var fastRetry = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  time.Millisecond,
	MaxDelay:   5 * time.Millisecond,
	Multiplier: 2.0,
}

// embeddingServer answers OpenAI/Jina style embedding requests with vectors
// of dim values, returned in reverse order to exercise index handling
func embeddingServer(t *testing.T, dim int, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if code := status.Load(); code != 0 && code != http.StatusOK {
			w.WriteHeader(int(code))
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}

		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing or incorrect Authorization header: %q", r.Header.Get("Authorization"))
		}

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Dimensions != dim {
			t.Errorf("dimensions = %d, want %d", req.Dimensions, dim)
		}

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[0] = float64(i + 1)
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestJinaProvider(t *testing.T) {
	var status, calls atomic.Int32
	server := embeddingServer(t, 8, &status, &calls)
	defer server.Close()

	provider, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL, Dimension: 8})
	if err != nil {
		t.Fatalf("NewJinaProvider() error = %v", err)
	}
	provider.retry = fastRetry
	defer provider.Close()
	ctx := context.Background()

	t.Run("metadata", func(t *testing.T) {
		if provider.Provider() != ProviderJina || provider.Model() != DefaultJinaModel || provider.Dimension() != 8 {
			t.Errorf("unexpected metadata %s/%s/%d", provider.Provider(), provider.Model(), provider.Dimension())
		}
	})

	t.Run("batch keeps input order", func(t *testing.T) {
		vecs, err := provider.EmbedBatch(ctx, []string{"a", "b", "c"})
		if err != nil {
			t.Fatalf("EmbedBatch() error = %v", err)
		}
		for i, v := range vecs {
			if v[0] != float32(i+1) {
				t.Errorf("vector %d out of order: %v", i, v[0])
			}
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		status.Store(http.StatusUnauthorized)
		defer status.Store(0)
		calls.Store(0)

		_, err := provider.Embed(ctx, "x")
		if !errors.Is(err, ErrProviderFailed) {
			t.Errorf("error = %v, want ErrProviderFailed", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("server error is retried", func(t *testing.T) {
		status.Store(http.StatusBadGateway)
		defer status.Store(0)
		calls.Store(0)

		_, err := provider.Embed(ctx, "x")
		if !errors.Is(err, ErrProviderFailed) {
			t.Errorf("error = %v, want ErrProviderFailed", err)
		}
		if calls.Load() != int32(fastRetry.MaxRetries) {
			t.Errorf("calls = %d, want %d", calls.Load(), fastRetry.MaxRetries)
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv(EnvJinaAPIKey, "")
		if _, err := NewJinaProvider(Config{}); !errors.Is(err, ErrNoProviderEnabled) {
			t.Errorf("error = %v, want ErrNoProviderEnabled", err)
		}
	})
}

func TestOpenAIProvider(t *testing.T) {
	var status, calls atomic.Int32
	server := embeddingServer(t, 8, &status, &calls)
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL + "/", Dimension: 8})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	provider.retry = fastRetry
	ctx := context.Background()

	t.Run("single embedding", func(t *testing.T) {
		vec, err := provider.Embed(ctx, "hello")
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(vec) != 8 || vec[0] != 1 {
			t.Errorf("unexpected vector %v", vec)
		}
	})

	t.Run("batch keeps input order", func(t *testing.T) {
		vecs, err := provider.EmbedBatch(ctx, []string{"a", "b"})
		if err != nil {
			t.Fatalf("EmbedBatch() error = %v", err)
		}
		if vecs[0][0] != 1 || vecs[1][0] != 2 {
			t.Errorf("vectors out of order: %v %v", vecs[0][0], vecs[1][0])
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		status.Store(http.StatusBadRequest)
		defer status.Store(0)
		calls.Store(0)

		_, err := provider.Embed(ctx, "x")
		if !errors.Is(err, ErrProviderFailed) {
			t.Errorf("error = %v, want ErrProviderFailed", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv(EnvOpenAIAPIKey, "")
		if _, err := NewOpenAIProvider(Config{}); !errors.Is(err, ErrNoProviderEnabled) {
			t.Errorf("error = %v, want ErrNoProviderEnabled", err)
		}
	})
}

func TestGeminiProvider_MissingKey(t *testing.T) {
	t.Setenv(EnvGeminiAPIKey, "")
	t.Setenv(EnvGoogleAPIKey, "")
	if _, err := NewGeminiProvider(context.Background(), Config{}); !errors.Is(err, ErrNoProviderEnabled) {
		t.Errorf("error = %v, want ErrNoProviderEnabled", err)
	}
}

func TestOrderByIndex(t *testing.T) {
	vecs := [][]float32{{2}, {1}}
	idx := []int{1, 0}
	out, err := orderByIndex(2, 2, func(i int) (int, []float32) { return idx[i], vecs[i] })
	if err != nil {
		t.Fatal(err)
	}
	if out[0][0] != 1 || out[1][0] != 2 {
		t.Errorf("unexpected order %v", out)
	}

	if _, err := orderByIndex(2, 1, func(i int) (int, []float32) { return 0, vecs[0] }); err == nil {
		t.Error("expected error for missing vector")
	}
	if _, err := orderByIndex(1, 1, func(i int) (int, []float32) { return 5, vecs[0] }); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient error", func(t *testing.T) {
		calls := 0
		result, err := retryWithBackoff(ctx, fastRetry, func() (string, error) {
			calls++
			if calls < 2 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})
		if err != nil || result != "success" {
			t.Errorf("got %q, %v", result, err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("exponential backoff timing", func(t *testing.T) {
		cfg := RetryConfig{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}
		start := time.Now()
		calls := 0
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			calls++
			return 0, fmt.Errorf("error %d", calls)
		})
		if err == nil || err.Error() != "error 3" {
			t.Errorf("expected last error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		// 10ms + 20ms between three attempts
		if time.Since(start) < 30*time.Millisecond {
			t.Error("backoff delays were not applied")
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		sentinel := errors.New("bad key")
		calls := 0
		_, err := retryWithBackoff(ctx, fastRetry, func() (int, error) {
			calls++
			return 0, permanent(sentinel)
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("error = %v, want sentinel", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := retryWithBackoff(cctx, cfg, func() (int, error) {
			return 0, errors.New("fail")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Error("cancellation did not interrupt backoff")
		}
	})
}
