package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sprachcoach/pkg/provider/llm"
	"github.com/MrWong99/sprachcoach/pkg/types"
)

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_Gemini_WithAPIKey checks that the Gemini backend constructs successfully.
func TestNew_Gemini_WithAPIKey(t *testing.T) {
	p, err := New("gemini", "gemini-2.0-flash", anyllmlib.WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gemini-2.0-flash" {
		t.Errorf("expected model gemini-2.0-flash, got %q", p.model)
	}
}

// TestNew_OpenAI_WithAPIKey checks that the OpenAI backend constructs successfully.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestNew_CaseInsensitiveProviderName checks provider name matching ignores case.
func TestNew_CaseInsensitiveProviderName(t *testing.T) {
	_, err := New("Gemini", "gemini-2.0-flash", anyllmlib.WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptFirst checks that the system prompt is prepended
// as a system-role message.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a tutor.",
		Messages: []types.Message{
			{Role: "user", Content: "Hallo"},
		},
	})

	if params.Model != "gemini-2.0-flash" {
		t.Errorf("expected model gemini-2.0-flash, got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("expected second role user, got %q", params.Messages[1].Role)
	}
}

// TestBuildParams_OptionalTuning checks pointers are only set when requested.
func TestBuildParams_OptionalTuning(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}

	bare := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "x"}},
	})
	if bare.Temperature != nil {
		t.Error("temperature should be nil by default")
	}
	if bare.MaxTokens != nil {
		t.Error("max tokens should be nil by default")
	}

	tuned := p.buildParams(llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "x"}},
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if tuned.Temperature == nil || *tuned.Temperature != 0.7 {
		t.Errorf("temperature = %v; want 0.7", tuned.Temperature)
	}
	if tuned.MaxTokens == nil || *tuned.MaxTokens != 512 {
		t.Errorf("max tokens = %v; want 512", tuned.MaxTokens)
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

// TestModelCapabilities_GPT4o checks gpt-4o capabilities.
func TestModelCapabilities_GPT4o(t *testing.T) {
	caps := modelCapabilities("gpt-4o")
	if caps.ContextWindow != 128_000 {
		t.Errorf("gpt-4o: expected context window 128000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 16_384 {
		t.Errorf("gpt-4o: expected MaxOutputTokens 16384, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_Claude checks claude capabilities.
func TestModelCapabilities_Claude(t *testing.T) {
	caps := modelCapabilities("claude-3-5-sonnet-latest")
	if caps.ContextWindow != 200_000 {
		t.Errorf("claude: expected context window 200000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 8_192 {
		t.Errorf("claude: expected MaxOutputTokens 8192, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_Gemini20Flash checks gemini-2.0-flash capabilities.
func TestModelCapabilities_Gemini20Flash(t *testing.T) {
	caps := modelCapabilities("gemini-2.0-flash")
	if caps.ContextWindow != 1_048_576 {
		t.Errorf("gemini-2.0-flash: expected context window 1048576, got %d", caps.ContextWindow)
	}
}

// TestModelCapabilities_Gemini15Pro checks gemini-1.5-pro capabilities.
func TestModelCapabilities_Gemini15Pro(t *testing.T) {
	caps := modelCapabilities("gemini-1.5-pro")
	if caps.ContextWindow != 2_097_152 {
		t.Errorf("gemini-1.5-pro: expected context window 2097152, got %d", caps.ContextWindow)
	}
}

// TestModelCapabilities_GeminiGeneric catches generic Gemini models.
func TestModelCapabilities_GeminiGeneric(t *testing.T) {
	caps := modelCapabilities("gemini-pro")
	if caps.ContextWindow != 1_048_576 {
		t.Errorf("gemini-generic: expected context window 1048576, got %d", caps.ContextWindow)
	}
}

// TestModelCapabilities_Unknown checks that unknown models return safe defaults.
func TestModelCapabilities_Unknown(t *testing.T) {
	caps := modelCapabilities("my-custom-model")
	if caps.ContextWindow <= 0 {
		t.Error("unknown model: expected positive ContextWindow")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("unknown model: expected positive MaxOutputTokens")
	}
	if !caps.SupportsStreaming {
		t.Error("unknown model: expected SupportsStreaming=true")
	}
}

// TestModelCapabilities_CaseInsensitive checks that model matching ignores case.
func TestModelCapabilities_CaseInsensitive(t *testing.T) {
	lower := modelCapabilities("claude-3-haiku")
	upper := modelCapabilities("CLAUDE-3-HAIKU")
	if lower.ContextWindow != upper.ContextWindow {
		t.Errorf("case should not matter: got %d vs %d", lower.ContextWindow, upper.ContextWindow)
	}
}

// ── Capabilities ──────────────────────────────────────────────────────────────

// TestCapabilities_ReturnsForModel checks Capabilities() delegates to modelCapabilities.
func TestCapabilities_ReturnsForModel(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	caps := p.Capabilities()
	expected := modelCapabilities("gemini-2.0-flash")
	if caps.ContextWindow != expected.ContextWindow {
		t.Errorf("expected ContextWindow %d, got %d", expected.ContextWindow, caps.ContextWindow)
	}
}
