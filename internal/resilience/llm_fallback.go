package resilience

import (
	"context"

	"github.com/technolifts/presence/pkg/provider/llm"
	"github.com/technolifts/presence/pkg/types"
)

// LLMFallback implements [llm.Provider] across an ordered list of chat
// backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy backend takes the call.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers another chat backend, tried after those already
// present.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete returns the first healthy backend's response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a chunk stream on the first healthy backend. Only
// stream setup participates in failover; once chunks are flowing, mid-stream
// errors reach the caller exactly as the underlying provider reports them.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens delegates to the first healthy backend's tokeniser.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary backend's capabilities. Capabilities are
// static metadata and do not participate in failover, so history trimming
// stays calibrated to the preferred model.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.primary().Capabilities()
}
