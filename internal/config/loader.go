package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the corresponding YAML field is empty.
const (
	envServerAPIKey  = "PRESENCE_API_KEY"
	envElevenLabsKey = "ELEVENLABS_API_KEY"
	envAnthropicKey  = "ANTHROPIC_API_KEY"
	envOpenAIKey     = "OPENAI_API_KEY"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, resolves secrets from the
// environment, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvFallbacks(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvFallbacks fills secret fields from the environment so API keys
// never need to live in the YAML file itself.
func applyEnvFallbacks(cfg *Config) {
	cfg.Server.APIKey = resolveSecret(cfg.Server.APIKey, envServerAPIKey)
	cfg.ElevenLabs.APIKey = resolveSecret(cfg.ElevenLabs.APIKey, envElevenLabsKey)
	cfg.LLM.APIKey = resolveSecret(cfg.LLM.APIKey, providerKeyVar(cfg.LLM.Provider))
	for i := range cfg.LLM.Fallbacks {
		fb := &cfg.LLM.Fallbacks[i]
		fb.APIKey = resolveSecret(fb.APIKey, providerKeyVar(fb.Provider))
	}
}

// providerKeyVar names the environment variable conventionally holding the
// given provider's API key.
func providerKeyVar(p LLMProvider) string {
	switch p {
	case LLMAnthropic:
		return envAnthropicKey
	case LLMOpenAI:
		return envOpenAIKey
	default:
		return ""
	}
}

// resolveSecret returns value unless it is empty or a "${VAR}" reference, in
// which case the environment supplies it (fallbackVar when value is empty).
func resolveSecret(value, fallbackVar string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"))
	}
	if value == "" && fallbackVar != "" {
		return os.Getenv(fallbackVar)
	}
	return value
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReadTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout_seconds %d must not be negative", cfg.Server.ReadTimeoutSeconds))
	}
	if cfg.Server.WriteTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout_seconds %d must not be negative", cfg.Server.WriteTimeoutSeconds))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}
	if cfg.Server.APIKey == "" {
		slog.Warn("server.api_key is empty; API authentication is disabled")
	}

	// ElevenLabs availability
	if cfg.ElevenLabs.APIKey == "" {
		slog.Warn("elevenlabs.api_key is empty; transcription, cloning, and synthesis will be unavailable")
	}

	// LLM
	if cfg.LLM.Provider != "" && !cfg.LLM.Provider.IsValid() {
		slog.Warn("unknown llm provider; may be a typo or third-party registration",
			"provider", cfg.LLM.Provider,
			"known", []LLMProvider{LLMAnthropic, LLMOpenAI, LLMOllama},
		)
	}
	if cfg.LLM.Provider == "" {
		slog.Warn("llm.provider is empty; persona chat will be unavailable")
	}
	if needsAPIKey(cfg.LLM.Provider) && cfg.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required for provider %q", cfg.LLM.Provider))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must not be negative", cfg.LLM.MaxTokens))
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if fb.Provider == "" {
			errs = append(errs, fmt.Errorf("llm.fallbacks[%d].provider is empty", i))
			continue
		}
		if needsAPIKey(fb.Provider) && fb.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.fallbacks[%d].api_key is required for provider %q", i, fb.Provider))
		}
	}

	// Audio
	if rate := cfg.Audio.TargetSampleRate; rate != 0 && (rate < 8000 || rate > 192000) {
		errs = append(errs, fmt.Errorf("audio.target_sample_rate %d is out of range [8000, 192000]", rate))
	}
	if cfg.Audio.CombineTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.combine_timeout_seconds %d must not be negative", cfg.Audio.CombineTimeoutSeconds))
	}

	// Interview
	for i, q := range cfg.Interview.Questions {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Errorf("interview.questions[%d] is empty", i))
		}
	}
	if cfg.Interview.SessionTTLMinutes < 0 {
		errs = append(errs, fmt.Errorf("interview.session_ttl_minutes %d must not be negative", cfg.Interview.SessionTTLMinutes))
	}

	return errors.Join(errs...)
}

// needsAPIKey reports whether the named provider requires an API key.
// Ollama serves local models without authentication.
func needsAPIKey(p LLMProvider) bool {
	return p == LLMAnthropic || p == LLMOpenAI
}
