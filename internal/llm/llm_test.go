package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  error
		wantType any
	}{
		{"default is anthropic", "", nil, &AnthropicClient{}},
		{"anthropic", "anthropic", nil, &AnthropicClient{}},
		{"openai", "OpenAI", nil, &OpenAIClient{}},
		{"unknown", "llama", ErrUnknownProvider, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{Provider: tt.provider, APIKey: "test-key"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, c)
		})
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv(EnvAnthropicAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := New(Config{Provider: ProviderAnthropic})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestConfigDefaults(t *testing.T) {
	c, err := NewAnthropicClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, c.model)
	assert.Equal(t, int64(DefaultMaxTokens), c.maxTokens)

	o, err := NewOpenAIClient(Config{APIKey: "k", Model: "gpt-test", MaxTokens: 99})
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", o.model)
	assert.Equal(t, int64(99), o.maxTokens)
}

func TestValidateHistory(t *testing.T) {
	assert.NoError(t, validateHistory([]Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}))
	assert.ErrorIs(t, validateHistory(nil), ErrInvalidMessage)
	assert.ErrorIs(t, validateHistory([]Message{{Role: "system", Content: "x"}}), ErrInvalidMessage)
	assert.ErrorIs(t, validateHistory([]Message{{Role: RoleUser, Content: "  "}}), ErrInvalidMessage)
}

// anthropicServer answers the Messages API with text and records the request body
func anthropicServer(t *testing.T, status int, text string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         DefaultAnthropicModel,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicClient_Complete(t *testing.T) {
	var body map[string]any
	srv := anthropicServer(t, http.StatusOK, "Use the Store interface.", &body)

	c, err := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "You are helpful.", []Message{
		{Role: RoleUser, Content: "Where is storage?"},
		{Role: RoleAssistant, Content: "In internal/storage."},
		{Role: RoleUser, Content: "Which interface?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Use the Store interface.", out)

	assert.Equal(t, DefaultAnthropicModel, body["model"])
	assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, "You are helpful.", system[0].(map[string]any)["text"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
}

func TestAnthropicClient_APIError(t *testing.T) {
	srv := anthropicServer(t, http.StatusBadRequest, "", nil)

	c, err := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestAnthropicClient_EmptyText(t *testing.T) {
	srv := anthropicServer(t, http.StatusOK, "", nil)

	c, err := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestOpenAIClient_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   DefaultOpenAIModel,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"logprobs":      nil,
				"message":       map[string]any{"role": "assistant", "content": "Look at searcher.go.", "refusal": nil},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "system prompt", []Message{{Role: RoleUser, Content: "Where is search?"}})
	require.NoError(t, err)
	assert.Equal(t, "Look at searcher.go.", out)

	assert.Equal(t, DefaultOpenAIModel, body["model"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestComplete_RejectsInvalidHistory(t *testing.T) {
	c, err := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", []Message{{Role: "tool", Content: "x"}})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.NotErrorIs(t, err, ErrCompletionFailed)
}
