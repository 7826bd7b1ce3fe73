package resilience

import (
	"context"

	"github.com/technolifts/presence/pkg/provider/voice"
	"github.com/technolifts/presence/pkg/types"
)

// VoiceFallback implements [voice.Provider] across an ordered list of speech
// backends, each guarded by its own circuit breaker. Presence typically
// configures a single hosted backend, so the group's main job is fail-fast:
// once the breaker opens, synthesis and transcription requests are rejected
// immediately instead of hanging on a dead API.
type VoiceFallback struct {
	group *FallbackGroup[voice.Provider]
}

var _ voice.Provider = (*VoiceFallback)(nil)

// NewVoiceFallback creates a [VoiceFallback] preferring primary.
func NewVoiceFallback(primary voice.Provider, primaryName string, cfg FallbackConfig) *VoiceFallback {
	return &VoiceFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers another speech backend, tried after those already
// present. Cloned voice IDs are not portable between backends, so fallbacks
// only make sense for deployments that mirror their voice catalogue.
func (f *VoiceFallback) AddFallback(name string, provider voice.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text to audio on the first healthy backend.
func (f *VoiceFallback) Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p voice.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voiceID)
	})
}

// SynthesizeStream opens a streaming synthesis session on the first healthy
// backend. Only session setup participates in failover; the text channel is
// consumed by whichever backend accepted the stream.
func (f *VoiceFallback) SynthesizeStream(ctx context.Context, text <-chan string, voiceID string) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p voice.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voiceID)
	})
}

// Transcribe converts recorded audio to text on the first healthy backend.
func (f *VoiceFallback) Transcribe(ctx context.Context, audio []byte, filename string) (*types.Transcript, error) {
	return ExecuteWithResult(f.group, func(p voice.Provider) (*types.Transcript, error) {
		return p.Transcribe(ctx, audio, filename)
	})
}

// ListVoices lists the first healthy backend's voice catalogue.
func (f *VoiceFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p voice.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// CloneVoice trains a new voice profile on the first healthy backend.
func (f *VoiceFallback) CloneVoice(ctx context.Context, name, description string, samples [][]byte) (*types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p voice.Provider) (*types.VoiceProfile, error) {
		return p.CloneVoice(ctx, name, description, samples)
	})
}
