// Package llm defines the Provider interface for the one-shot analysis
// backends.
//
// An LLM provider wraps a remote or local model API (e.g., Gemini, OpenAI,
// or a local Ollama instance) and exposes a uniform interface for the
// feedback dispatcher to request a single completion per finalized turn
// without coupling to any specific SDK.
//
// Implementations must be safe for concurrent use: the dispatcher may have
// several analysis calls in flight at once, one per finalized turn.
package llm

import (
	"context"

	"github.com/MrWong99/sprachcoach/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. For analysis calls this is a
	// single "user" message carrying the finalized transcript.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0].
	// A value of 0.0 typically requests greedy (argmax) decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is a high-priority instruction injected before the
	// conversation. If the provider does not natively support a dedicated
	// system prompt, implementors should prepend it as a "system"-role
	// message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any one-shot LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports.
	Capabilities() types.ModelCapabilities
}
