// Package types defines the shared types used across all Presence packages.
//
// These types form the lingua franca between the voice and LLM providers, the
// interview session layer, and the HTTP API. They are intentionally minimal:
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Name is an optional participant name (for multi-speaker contexts).
	Name string `json:"name,omitempty"`
}

// Transcript represents a speech-to-text result from the voice provider.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the detected language code (e.g., "en").
	Language string

	// Confidence is the provider's language/recognition confidence (0.0–1.0).
	// May be zero if the provider does not report one.
	Confidence float64

	// Words contains per-word timing detail when available. May be nil.
	Words []WordDetail
}

// WordDetail holds per-word metadata from transcription providers that
// support it.
type WordDetail struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// VoiceProfile describes a synthesis voice offered by the voice provider,
// either a stock voice or one cloned from user recordings.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"voice_id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Category distinguishes stock voices from clones (e.g., "premade",
	// "cloned").
	Category string `json:"category,omitempty"`

	// Description is the provider's blurb for the voice, if any.
	Description string `json:"description,omitempty"`

	// PreviewURL points at a short sample clip when the provider hosts one.
	PreviewURL string `json:"preview_url,omitempty"`

	// Labels holds provider-specific voice attributes (gender, age, accent).
	Labels map[string]string `json:"labels,omitempty"`
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
