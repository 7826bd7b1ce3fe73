// Package chat turns stored personas into conversation partners. It grounds
// each reply in the persona's system prompt, trims history to the model's
// context window, and can speak replies by piping the completion stream into
// sentence-level speech synthesis.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/technolifts/presence/internal/persona"
	"github.com/technolifts/presence/pkg/provider/llm"
	"github.com/technolifts/presence/pkg/provider/voice"
	"github.com/technolifts/presence/pkg/types"
)

const (
	// DefaultTemperature matches the sampling the persona prompt was tuned
	// against.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps written chat replies.
	DefaultMaxTokens = 1024

	// DefaultSpokenMaxTokens caps spoken replies, which should stay short
	// enough to listen to.
	DefaultSpokenMaxTokens = 300

	// textBuf is the buffer depth of the sentence channel feeding synthesis.
	// Sized to absorb several sentences without blocking the forwarder.
	textBuf = 16
)

// Service generates persona-grounded replies.
type Service struct {
	llm   llm.Provider
	voice voice.Provider

	temperature     float64
	maxTokens       int
	spokenMaxTokens int
}

// Option configures a [Service].
type Option func(*Service)

// WithVoice enables spoken replies through the given provider.
func WithVoice(v voice.Provider) Option {
	return func(s *Service) { s.voice = v }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens overrides the written-reply token cap.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithSpokenMaxTokens overrides the spoken-reply token cap.
func WithSpokenMaxTokens(n int) Option {
	return func(s *Service) { s.spokenMaxTokens = n }
}

// New creates a chat Service over the given LLM provider.
func New(provider llm.Provider, opts ...Option) *Service {
	s := &Service{
		llm:             provider,
		temperature:     DefaultTemperature,
		maxTokens:       DefaultMaxTokens,
		spokenMaxTokens: DefaultSpokenMaxTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply generates the persona's next reply to the conversation history.
// History is trimmed from the oldest message forward until the estimated
// prompt fits the model's context window.
func (s *Service) Reply(ctx context.Context, p *persona.Persona, history []types.Message) (*llm.CompletionResponse, error) {
	msgs, err := s.trimHistory(history, s.maxTokens)
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
		SystemPrompt: persona.BuildSystemPrompt(p),
	})
	if err != nil {
		return nil, fmt.Errorf("chat: completion: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return nil, fmt.Errorf("chat: completion returned no content")
	}
	return resp, nil
}

// SpokenReply holds a generated reply and its synthesized speech.
type SpokenReply struct {
	// Text is the full reply text.
	Text string
	// Audio is the encoded speech (MP3 by default), assembled from the
	// synthesis stream.
	Audio []byte
}

// SpokenReply generates the persona's next reply and speaks it. The
// completion is streamed: complete sentences are forwarded to the voice
// provider as they form, so synthesis starts before the model finishes.
// voiceID falls back to the persona's cloned voice when empty.
func (s *Service) SpokenReply(ctx context.Context, p *persona.Persona, history []types.Message, voiceID string) (*SpokenReply, error) {
	if s.voice == nil {
		return nil, fmt.Errorf("chat: no voice provider configured")
	}
	if voiceID == "" && p != nil {
		voiceID = p.VoiceID
	}

	msgs, err := s.trimHistory(history, s.spokenMaxTokens)
	if err != nil {
		return nil, err
	}

	parentCtx := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := s.llm.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     msgs,
		Temperature:  s.temperature,
		MaxTokens:    s.spokenMaxTokens,
		SystemPrompt: persona.BuildSystemPrompt(p),
	})
	if err != nil {
		return nil, fmt.Errorf("chat: start completion stream: %w", err)
	}

	textCh := make(chan string, textBuf)
	audioCh, err := s.voice.SynthesizeStream(ctx, textCh, voiceID)
	if err != nil {
		go drainChunks(chunks)
		return nil, fmt.Errorf("chat: start synthesis stream: %w", err)
	}

	// Forward sentences in the background while this goroutine drains the
	// audio stream; the provider closes audioCh once textCh closes and the
	// tail of the synthesis arrives.
	var (
		full       strings.Builder
		forwardErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(textCh)
		forwardErr = forwardSentences(ctx, chunks, textCh, &full)
	}()

	var audio bytes.Buffer
	for chunk := range audioCh {
		audio.Write(chunk)
	}
	// An audio channel that closes while the forwarder is still sending means
	// the synthesizer died mid-reply; cancel so the forwarder cannot block on
	// a channel nobody reads.
	cancel()
	<-done

	if err := parentCtx.Err(); err != nil {
		return nil, fmt.Errorf("chat: spoken reply: %w", err)
	}
	if forwardErr != nil {
		if errors.Is(forwardErr, context.Canceled) {
			return nil, fmt.Errorf("chat: synthesis stream ended before the reply completed")
		}
		return nil, forwardErr
	}
	return &SpokenReply{Text: full.String(), Audio: audio.Bytes()}, nil
}

// trimHistory drops the oldest messages until the estimated token count fits
// the context window minus the reply reservation. The most recent message is
// always kept.
func (s *Service) trimHistory(history []types.Message, reserve int) ([]types.Message, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("chat: empty message history")
	}

	window := s.llm.Capabilities().ContextWindow
	if window <= 0 {
		return history, nil
	}
	budget := window - reserve

	msgs := history
	for len(msgs) > 1 {
		n, err := s.llm.CountTokens(msgs)
		if err != nil {
			return nil, fmt.Errorf("chat: count tokens: %w", err)
		}
		if n <= budget {
			break
		}
		msgs = msgs[1:]
	}
	return msgs, nil
}

// forwardSentences reads completion chunks from ch, accumulates them into
// complete sentences, and writes each sentence to textCh so synthesis can
// begin mid-completion. The full reply text is collected into full. Any text
// remaining when the stream ends is flushed as a final fragment.
func forwardSentences(ctx context.Context, ch <-chan llm.Chunk, textCh chan<- string, full *strings.Builder) error {
	var buf strings.Builder
	flush := func(text string) bool {
		select {
		case textCh <- text:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			go drainChunks(ch)
			return fmt.Errorf("chat: spoken reply: %w", ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				if buf.Len() > 0 {
					flush(buf.String())
				}
				return nil
			}
			// Stream-level failures arrive as a terminal chunk whose text is
			// the error message, not reply content.
			if chunk.FinishReason == "error" {
				go drainChunks(ch)
				return fmt.Errorf("chat: completion stream: %s", chunk.Text)
			}

			if chunk.Text != "" {
				buf.WriteString(chunk.Text)
				full.WriteString(chunk.Text)
			}

			// Flush complete sentences eagerly for lower synthesis latency.
			for {
				idx := firstSentenceBoundary(buf.String())
				if idx < 0 {
					break
				}
				sentence := buf.String()[:idx+1]
				rest := buf.String()[idx+1:]
				buf.Reset()
				buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
				if !flush(sentence) {
					go drainChunks(ch)
					return fmt.Errorf("chat: spoken reply: %w", ctx.Err())
				}
			}

			if chunk.FinishReason != "" {
				if buf.Len() > 0 {
					flush(buf.String())
				}
				go drainChunks(ch)
				return nil
			}
		}
	}
}

// firstSentenceBoundary returns the index of the first '.', '!', or '?'
// immediately followed by whitespace, or -1 if no boundary exists in s.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

// drainChunks discards remaining chunks so the provider's internal goroutine
// never blocks after this side stops reading.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
