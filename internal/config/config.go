// Package config provides the configuration schema, loader, and provider
// registry for the Presence server.
package config

// LogLevel controls log verbosity for the Presence server.
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

// LLMProvider names a chat-model backend for persona conversations.
type LLMProvider string

const (
	LLMAnthropic LLMProvider = "anthropic"
	LLMOpenAI    LLMProvider = "openai"
	LLMOllama    LLMProvider = "ollama"
)

// IsValid reports whether p is a built-in LLM provider name. Third-party
// names may still be registered at runtime; see [Registry].
func (p LLMProvider) IsValid() bool {
	switch p {
	case LLMAnthropic, LLMOpenAI, LLMOllama:
		return true
	}
	return false
}

// Config is the root configuration structure for Presence.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Audio      AudioConfig      `yaml:"audio"`
	Interview  InterviewConfig  `yaml:"interview"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network, auth, and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// APIKey is the shared secret clients must present in the x-api-key
	// header. A literal "${VAR}" resolves through the environment; when the
	// field is empty the PRESENCE_API_KEY variable is consulted. If no key is
	// configured at all, authentication is disabled.
	APIKey string `yaml:"api_key"`

	// ReadTimeoutSeconds bounds how long the server waits for a full request,
	// including large multipart uploads. 0 applies the built-in default.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`

	// WriteTimeoutSeconds bounds response writes. 0 applies the built-in
	// default. WebSocket endpoints are exempt.
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`

	// MaxUploadBytes caps the size of request bodies on upload endpoints
	// (audio answers, clone samples, documents). 0 applies the built-in default.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ElevenLabsConfig holds credentials and synthesis settings for the
// ElevenLabs voice backend.
type ElevenLabsConfig struct {
	// APIKey authenticates against the ElevenLabs API. A literal "${VAR}"
	// resolves through the environment; when empty, ELEVENLABS_API_KEY is
	// consulted.
	APIKey string `yaml:"api_key"`

	// ModelID selects the synthesis model (e.g., "eleven_monolingual_v1").
	ModelID string `yaml:"model_id"`

	// OutputFormat selects the synthesis output encoding
	// (e.g., "mp3_44100_128", "pcm_16000").
	OutputFormat string `yaml:"output_format"`

	// DefaultVoiceID is used when a request does not name a voice and the
	// persona has no cloned voice yet.
	DefaultVoiceID string `yaml:"default_voice_id"`
}

// LLMConfig selects and configures the chat-model backend for persona
// conversations.
type LLMConfig struct {
	// Provider selects the registered LLM implementation
	// ("anthropic", "openai", "ollama").
	Provider LLMProvider `yaml:"provider"`

	// APIKey authenticates against the provider's API. A literal "${VAR}"
	// resolves through the environment; when empty, ANTHROPIC_API_KEY or
	// OPENAI_API_KEY is consulted depending on Provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "claude-3-opus-20240229", "gpt-4o").
	Model string `yaml:"model"`

	// Temperature controls sampling randomness in [0, 2]. 0 applies the
	// built-in default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps reply length. 0 applies the built-in default.
	MaxTokens int `yaml:"max_tokens"`

	// Fallbacks lists alternate chat backends tried in order when the primary
	// provider fails or its circuit breaker is open.
	Fallbacks []LLMBackendConfig `yaml:"fallbacks"`
}

// LLMBackendConfig names one fallback chat backend.
type LLMBackendConfig struct {
	// Provider selects the registered LLM implementation.
	Provider LLMProvider `yaml:"provider"`

	// APIKey authenticates against the provider's API. A literal "${VAR}"
	// resolves through the environment; when empty the provider's usual
	// variable is consulted.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// StorageConfig holds filesystem locations for persisted state. Directories
// are created at startup if missing.
type StorageConfig struct {
	// ProfilesDir stores persona profiles as JSON files.
	ProfilesDir string `yaml:"profiles_dir"`

	// DocumentsDir stores uploaded background documents.
	DocumentsDir string `yaml:"documents_dir"`
}

// AudioConfig tunes the interview audio pipeline.
type AudioConfig struct {
	// TargetSampleRate is the sample rate of combined recordings in Hz.
	// 0 applies the built-in default of 44100.
	TargetSampleRate int `yaml:"target_sample_rate"`

	// ResampleOnMismatch controls what happens when recorded answers carry
	// different sample rates: false rejects the combine request naming the
	// offending segment; true resamples every segment to TargetSampleRate.
	ResampleOnMismatch bool `yaml:"resample_on_mismatch"`

	// CombineTimeoutSeconds bounds a single combine operation. 0 applies the
	// built-in default.
	CombineTimeoutSeconds int `yaml:"combine_timeout_seconds"`
}

// InterviewConfig tunes interview recording sessions.
type InterviewConfig struct {
	// Questions overrides the built-in interview script. Each entry is asked
	// in order; answers are combined in the same order.
	Questions []string `yaml:"questions"`

	// SessionTTLMinutes is how long an idle session survives before the
	// janitor evicts it. 0 applies the built-in default.
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
}

// TelemetryConfig identifies this deployment in metrics and traces.
type TelemetryConfig struct {
	// ServiceName is the value of the service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the value of the service.version resource attribute.
	ServiceVersion string `yaml:"service_version"`
}

// ProviderEntry is the provider-agnostic configuration bundle handed to
// [Registry] factories. The Name field selects the registered constructor.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "anthropic", "elevenlabs").
	Name string

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string

	// Model selects a specific model within the provider.
	Model string

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any
}

// Entry converts the LLM section into the registry's provider-agnostic form.
func (c LLMConfig) Entry() ProviderEntry {
	return ProviderEntry{
		Name:    string(c.Provider),
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
	}
}

// Entry converts a fallback backend into the registry's provider-agnostic form.
func (c LLMBackendConfig) Entry() ProviderEntry {
	return ProviderEntry{
		Name:    string(c.Provider),
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
	}
}

// Entry converts the ElevenLabs section into the registry's provider-agnostic
// form, carrying synthesis settings in Options.
func (c ElevenLabsConfig) Entry() ProviderEntry {
	e := ProviderEntry{
		Name:   "elevenlabs",
		APIKey: c.APIKey,
		Model:  c.ModelID,
	}
	opts := make(map[string]any)
	if c.OutputFormat != "" {
		opts["output_format"] = c.OutputFormat
	}
	if c.DefaultVoiceID != "" {
		opts["default_voice_id"] = c.DefaultVoiceID
	}
	if len(opts) > 0 {
		e.Options = opts
	}
	return e
}
