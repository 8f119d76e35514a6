// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local model API (an OpenAI-compatible proxy, a
// local Ollama instance, Anthropic, and so on) behind a single non-streaming
// completion call. Facilitator replies are short and spoken as a whole, so
// streaming is not part of the contract.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// Messages is the ordered conversation history, oldest first.
	Messages []Message

	// SystemPrompt is the facilitation instruction sent ahead of Messages.
	SystemPrompt string

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int

	// Temperature controls output randomness. Zero leaves the provider
	// default in place.
	Temperature float64
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// FinishReason reports why generation stopped ("stop", "length", ...).
	// Empty when the backend does not say.
	FinishReason string

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Implementations must return promptly when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
