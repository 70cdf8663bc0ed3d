// Package config provides the configuration schema and loader for the
// Sprachcoach daemon.
package config

import "time"

// LogLevel controls log verbosity for the Sprachcoach server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Sprachcoach.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Live     LiveConfig     `yaml:"live"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig holds network and logging settings for the HTTP/WebSocket
// server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// SampleRate is the fixed mono capture rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of samples per capture block. Default: 2048.
	BlockSize int `yaml:"block_size"`
}

// LiveConfig configures the live transcription session backend.
type LiveConfig struct {
	// Model selects the live model (e.g., "gemini-2.0-flash-live-001").
	Model string `yaml:"model"`

	// APIKey authenticates against the live service. Falls back to the
	// GEMINI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the service's default WebSocket endpoint.
	BaseURL string `yaml:"base_url"`

	// SilenceWindow is the pause that finalizes a turn. Default: 3s.
	SilenceWindow time.Duration `yaml:"silence_window"`
}

// AnalysisConfig configures the one-shot feedback backend.
type AnalysisConfig struct {
	// Provider selects the backend: "openai" for the native OpenAI client,
	// anything else is routed through the multi-provider client
	// ("gemini", "anthropic", "ollama", "deepseek", "mistral", "groq", ...).
	Provider string `yaml:"provider"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}
