package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultMaxTokens      = 2000

	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
)

// Conversation roles accepted in a history
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrCompletionFailed wraps every failure of the language model backend
	ErrCompletionFailed = errors.New("completion failed")
	// ErrInvalidMessage is returned for history entries with an unknown role or no content
	ErrInvalidMessage = errors.New("invalid chat message")
	// ErrNoAPIKey is returned when the selected provider has no credentials
	ErrNoAPIKey = errors.New("no API key configured for LLM provider")
	// ErrUnknownProvider is returned for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown LLM provider")
)

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the next assistant turn for a system prompt and history
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (string, error)
}

// Config selects and configures the completion backend
type Config struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

func (c Config) modelOr(def string) string {
	if c.Model != "" {
		return c.Model
	}
	return def
}

func (c Config) maxTokens() int64 {
	if c.MaxTokens > 0 {
		return int64(c.MaxTokens)
	}
	return DefaultMaxTokens
}

func (c Config) apiKey(env string) (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s not set", ErrNoAPIKey, env)
}

// New creates the Completer named by cfg.Provider. An empty provider selects
// Anthropic.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// validateHistory checks every turn has a known role and some content
func validateHistory(history []Message) error {
	for i, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidMessage, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: message %d is empty", ErrInvalidMessage, i)
		}
	}
	if len(history) == 0 {
		return fmt.Errorf("%w: history is empty", ErrInvalidMessage)
	}
	return nil
}
