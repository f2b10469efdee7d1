// Package llm sends a system prompt and a conversation to a hosted language
// model and returns the next assistant turn. Anthropic is the default
// backend; OpenAI chat completions can be selected with Config.Provider.
package llm
