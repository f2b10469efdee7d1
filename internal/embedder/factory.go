package embedder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string        `mapstructure:"provider" yaml:"provider"`
	Model     string        `mapstructure:"model" yaml:"model"`
	Dimension int           `mapstructure:"dimension" yaml:"dimension"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CachePath string        `mapstructure:"cache_path" yaml:"cache_path,omitempty"`
}

func (c Config) modelOr(def string) string {
	if c.Model != "" {
		return c.Model
	}
	return def
}

func (c Config) dimension() int {
	if c.Dimension > 0 {
		return c.Dimension
	}
	return DefaultDimension
}

// New creates an embedder from cfg. Unless CacheSize is negative the result
// is wrapped in an LRU cache, plus a bbolt cache when CachePath is set.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	base, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize < 0 && cfg.CachePath == "" {
		return base, nil
	}

	var mem *Cache
	if cfg.CacheSize >= 0 {
		mem = NewCache(cfg.CacheSize, cfg.CacheTTL)
	}

	var disk *DiskCache
	if cfg.CachePath != "" {
		disk, err = OpenDiskCache(cfg.CachePath)
		if err != nil {
			_ = base.Close()
			return nil, err
		}
	}

	return WithCache(base, mem, disk), nil
}

func newProvider(ctx context.Context, cfg Config) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" || provider == ProviderAuto {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderLocal:
		return NewLocalProvider(cfg.dimension()), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	case ProviderJina:
		return NewJinaProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider picks a provider from the API keys present in the
// environment, falling back to the local embedder
func DetectProvider() string {
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvGeminiAPIKey) != "" || os.Getenv(EnvGoogleAPIKey) != "" {
		return ProviderGemini
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	return ProviderLocal
}
