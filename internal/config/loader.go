package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidAnalysisProviders lists known analysis provider names. Used by
// [Validate] to warn about unrecognised provider names.
var ValidAnalysisProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must not be negative", cfg.Audio.BlockSize))
	}
	if cfg.Live.SilenceWindow < 0 {
		errs = append(errs, fmt.Errorf("live.silence_window %s must not be negative", cfg.Live.SilenceWindow))
	}

	if cfg.Analysis.Provider != "" && !slices.Contains(ValidAnalysisProviders, cfg.Analysis.Provider) {
		slog.Warn("unknown analysis provider name, may be a typo",
			"name", cfg.Analysis.Provider,
			"known", ValidAnalysisProviders,
		)
	}

	if cfg.Live.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		slog.Warn("live.api_key is empty and GEMINI_API_KEY is not set; connect will fail until a key is provided")
	}

	return errors.Join(errs...)
}

// applyDefaults fills in zero values after validation passed.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = 2048
	}
	if cfg.Live.SilenceWindow == 0 {
		cfg.Live.SilenceWindow = 3 * time.Second
	}
	if cfg.Live.APIKey == "" {
		cfg.Live.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Analysis.Provider == "" {
		cfg.Analysis.Provider = "gemini"
	}
	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "gemini-2.0-flash"
	}
	if cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = cfg.Live.APIKey
	}
}
