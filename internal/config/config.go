package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/codememory/internal/chunker"
	"github.com/dshills/codememory/internal/embedder"
	"github.com/dshills/codememory/internal/indexer"
	"github.com/dshills/codememory/internal/llm"
	"github.com/dshills/codememory/internal/logging"
	"github.com/dshills/codememory/internal/storage"
)

const (
	// EnvPrefix prefixes every environment override, e.g. CODEMEMORY_STORAGE_DRIVER
	EnvPrefix = "CODEMEMORY"

	// FileName is the config file looked up in the working directory
	FileName = "codememory.yaml"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration
type Config struct {
	Storage   storage.Config  `mapstructure:"storage" yaml:"storage"`
	Embedding embedder.Config `mapstructure:"embedding" yaml:"embedding"`
	Chunking  chunker.Config  `mapstructure:"chunking" yaml:"chunking"`
	Index     indexer.Config  `mapstructure:"index" yaml:"index"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	LLM       llm.Config      `mapstructure:"llm" yaml:"llm"`
	Log       logging.Config  `mapstructure:"log" yaml:"log"`
}

// SearchConfig holds defaults for ad-hoc code search
type SearchConfig struct {
	MaxResults    int           `mapstructure:"max_results" yaml:"max_results"`
	MinSimilarity float64       `mapstructure:"min_similarity" yaml:"min_similarity"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

var defaults = map[string]any{
	"storage.driver":       storage.DriverSQLite,
	"storage.path":         "~/.codememory/codememory.db",
	"storage.database_url": "postgresql://localhost:5432/memory",
	"storage.max_conns":    10,

	"embedding.provider":   embedder.ProviderLocal,
	"embedding.model":      "",
	"embedding.dimension":  embedder.DefaultDimension,
	"embedding.api_key":    "",
	"embedding.base_url":   "",
	"embedding.cache_size": embedder.DefaultCacheSize,
	"embedding.cache_ttl":  time.Hour,
	"embedding.cache_path": "",

	"chunking.max_chunk_size": chunker.DefaultMaxChunkSize,
	"chunking.overlap":        chunker.DefaultOverlap,

	"index.include":       indexer.DefaultInclude,
	"index.exclude":       indexer.DefaultExclude,
	"index.workers":       indexer.DefaultWorkers,
	"index.max_file_size": indexer.DefaultMaxFileSize,

	"search.max_results":    10,
	"search.min_similarity": 0.5,
	"search.cache_ttl":      5 * time.Minute,

	"llm.provider":   llm.ProviderAnthropic,
	"llm.model":      llm.DefaultAnthropicModel,
	"llm.max_tokens": llm.DefaultMaxTokens,
	"llm.api_key":    "",
	"llm.base_url":   "",

	"log.level":  "info",
	"log.format": logging.FormatText,
}

// Well known variables accepted next to the prefixed ones
var aliases = map[string]string{
	"storage.database_url": "DATABASE_URL",
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range aliases {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
	return v
}

// Default returns the built-in configuration with no file or environment
// applied. Paths are not expanded.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("default configuration does not decode: %v", err))
	}
	return cfg
}

// Load builds the configuration from defaults, the config file and the
// environment, in increasing priority. An explicit path must exist; without
// one ./codememory.yaml and ~/.codememory/config.yaml are tried in order.
func Load(path string) (*Config, error) {
	v := newViper()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsedFile reports which file Load would read when given no explicit path,
// or "" when none exists
func UsedFile() string {
	return findConfigFile()
}

func findConfigFile() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".codememory", "config.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// DefaultPath is where `config init` writes the user configuration
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".codememory", "config.yaml"), nil
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverPostgres, "postgresql":
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Storage.Driver == storage.DriverSQLite && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive", ErrInvalidConfig)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("%w: search.min_similarity must be between -1 and 1", ErrInvalidConfig)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.Storage.Path, err = ExpandHome(c.Storage.Path); err != nil {
		return err
	}
	c.Embedding.CachePath, err = ExpandHome(c.Embedding.CachePath)
	return err
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Save writes cfg as YAML, creating the parent directory
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
