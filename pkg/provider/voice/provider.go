// Package voice defines the Provider interface for speech service backends.
//
// A voice provider wraps a hosted speech platform (e.g., ElevenLabs) and
// presents a uniform interface over the four capabilities Presence needs:
// one-shot synthesis for downloadable replies, streaming synthesis for
// low-latency playback, transcription of recorded answers, and voice cloning
// from interview recordings.
//
// Implementations must be safe for concurrent use.
package voice

import (
	"context"
	"errors"

	"github.com/technolifts/presence/pkg/types"
)

// ErrUploadTooLarge is returned by CloneVoice when the combined size of the
// supplied samples exceeds the provider's upload limit. Callers can map it to
// a client error instead of retrying.
var ErrUploadTooLarge = errors.New("voice: upload too large")

// Provider is the abstraction over any speech service backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis and
// transcription requests may run in parallel (e.g., several chat sessions
// speaking at once).
type Provider interface {
	// Synthesize converts text to speech in a single round trip and returns the
	// full encoded audio blob (format is implementation-configured, MP3 by
	// default). voiceID selects the voice; an empty voiceID falls back to the
	// provider's configured default voice.
	//
	// Returns an error if text is empty, the voice is unknown, or the service
	// call fails.
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)

	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits encoded audio byte chunks as they are synthesised.
	// This design lets the caller pipe LLM streaming output directly into
	// synthesis without waiting for the full reply text.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain the
	// audio channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered mid-synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voiceID string) (<-chan []byte, error)

	// Transcribe converts a recorded audio blob to text. filename hints the
	// container format to the service (e.g., "answer.wav"); implementations may
	// substitute a generic name when it is empty.
	//
	// Returns the recognised transcript, including language and word timing
	// detail where the service provides them.
	Transcribe(ctx context.Context, audio []byte, filename string) (*types.Transcript, error)

	// ListVoices returns all voice profiles available from this provider,
	// including voices cloned through CloneVoice. The list reflects the
	// provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// CloneVoice creates a new voice profile by training on the supplied audio
	// samples. Each element of samples must be a complete encoded audio file
	// (WAV or MP3). name labels the voice in the provider's catalogue;
	// description is optional.
	//
	// This is an expensive operation and should not be called in the hot path.
	// Returns the newly created VoiceProfile (with a provider-assigned ID) or an
	// error if cloning fails. A nil or empty samples slice returns an error
	// rather than panicking, as does an upload exceeding the provider's size
	// limit.
	CloneVoice(ctx context.Context, name, description string, samples [][]byte) (*types.VoiceProfile, error)
}
