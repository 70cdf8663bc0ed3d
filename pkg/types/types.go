// Package types holds the small set of data types shared between the
// provider packages and the application core.
package types

// Message is a single entry in an LLM conversation.
type Message struct {
	// Role is the speaker role: "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes static properties of an LLM backend's model.
// Values are assumed constant for the lifetime of the provider instance.
type ModelCapabilities struct {
	// SupportsStreaming indicates whether the backend can stream partial
	// completions. Sprachcoach only issues one-shot requests, but the flag
	// is kept so callers can log what the configured backend offers.
	SupportsStreaming bool

	// ContextWindow is the maximum token count the model can attend to.
	ContextWindow int

	// MaxOutputTokens caps the completion length the model may generate.
	MaxOutputTokens int
}
