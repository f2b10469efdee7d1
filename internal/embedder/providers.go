package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/codememory/internal/chunker"
)

// Provider configuration
const (
	ProviderAuto   = "auto"
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderJina   = "jina"

	// Default models
	DefaultLocalModel  = "feature-hash-v1"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGeminiModel = "text-embedding-004"
	DefaultJinaModel   = "jina-embeddings-v3"

	// DefaultDimension matches the vector(384) column of the store schema
	DefaultDimension = 384

	DefaultCacheSize = 10000

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	// Environment variables consulted when no API key is configured
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"

	defaultJinaURL = "https://api.jina.ai/v1/embeddings"
)

// estimateTokens is shared by every provider. Remote tokenizers differ
// slightly, the chars/4 estimate is close enough for budgeting.
func estimateTokens(text string) int {
	return chunker.EstimateTokenCount(text)
}

// LocalProvider embeds text offline with signed feature hashing over word
// tokens. Texts sharing vocabulary get a high cosine similarity, which is
// enough for tests and air-gapped use.
type LocalProvider struct {
	model string
	dim   int
}

// NewLocalProvider creates a local embedder producing dim-sized vectors
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &LocalProvider{
		model: DefaultLocalModel,
		dim:   dim,
	}
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.vector(text), nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (l *LocalProvider) vector(text string) []float32 {
	vec := make([]float32, l.dim)

	words := tokenize(text)
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()

		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(l.dim)] += sign
	}

	// Text with no word characters still needs a stable, non-zero vector
	if len(words) == 0 {
		digest := sha256.Sum256([]byte(text))
		for i := range vec {
			vec[i] = float32(digest[i%len(digest)])/255.0 - 0.5
		}
	}

	return NormalizeVector(vec)
}

// tokenize lowercases text and splits it into letter/digit runs
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (l *LocalProvider) CountTokens(text string) int {
	return estimateTokens(text)
}

func (l *LocalProvider) Dimension() int {
	return l.dim
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// JinaProvider implements Embedder using the Jina AI embeddings API
type JinaProvider struct {
	apiKey     string
	url        string
	model      string
	dim        int
	httpClient *http.Client
	retry      RetryConfig
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg Config) (*JinaProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	url := cfg.BaseURL
	if url == "" {
		url = defaultJinaURL
	}

	return &JinaProvider{
		apiKey: apiKey,
		url:    url,
		model:  cfg.modelOr(DefaultJinaModel),
		dim:    cfg.dimension(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryConfig(),
	}, nil
}

func (j *JinaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	vecs, err := j.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (j *JinaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vecs, err := retryWithBackoff(ctx, j.retry, func() ([][]float32, error) {
		return j.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if err := checkDimension(vecs, j.dim); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"input":      texts,
		"model":      j.model,
		"dimensions": j.dim,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return orderByIndex(len(texts), len(apiResp.Data), func(i int) (int, []float32) {
		return apiResp.Data[i].Index, apiResp.Data[i].Embedding
	})
}

// orderByIndex places n returned vectors into input order and checks that
// every input got exactly one vector
func orderByIndex(want, n int, at func(i int) (int, []float32)) ([][]float32, error) {
	out := make([][]float32, want)
	for i := 0; i < n; i++ {
		idx, vec := at(i)
		if idx < 0 || idx >= want || out[idx] != nil {
			return nil, permanent(fmt.Errorf("unexpected embedding index %d", idx))
		}
		out[idx] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, permanent(fmt.Errorf("no embedding returned for input %d", i))
		}
	}
	return out, nil
}

func (j *JinaProvider) CountTokens(text string) int {
	return estimateTokens(text)
}

func (j *JinaProvider) Dimension() int {
	return j.dim
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}
