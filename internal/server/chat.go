package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/technolifts/presence/internal/persona"
	"github.com/technolifts/presence/pkg/types"
)

// chatRequest is the body of POST /api/chat and /api/chat/speak. Messages
// are the conversation so far, oldest first; the reply continues it.
type chatRequest struct {
	PersonaID string          `json:"persona_id"`
	Messages  []types.Message `json:"messages"`
	VoiceID   string          `json:"voice_id,omitempty"`
}

// usageBody mirrors the usual completion-usage wire naming.
type usageBody struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// decodeChatRequest parses and validates the shared chat request shape,
// loading the persona it names. Writes the error response itself.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, *persona.Persona, bool) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	if req.PersonaID == "" {
		writeError(w, http.StatusBadRequest, "persona_id is required")
		return nil, nil, false
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return nil, nil, false
	}

	p, err := s.personas.Get(req.PersonaID)
	if err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			writeError(w, http.StatusNotFound, "persona not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, nil, false
	}
	return &req, p, true
}

// handleChat generates the persona's next written reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, p, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.chat.Reply(r.Context(), p, req.Messages)
	s.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "llm", "chat")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), "llm", "chat", "ok")

	writeJSON(w, http.StatusOK, struct {
		PersonaID string    `json:"persona_id"`
		Reply     string    `json:"reply"`
		Usage     usageBody `json:"usage"`
	}{
		PersonaID: p.ID,
		Reply:     resp.Content,
		Usage: usageBody{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	})
}

// handleChatSpeak generates the persona's next reply and speaks it in the
// persona's cloned voice. The audio comes back base64-encoded in the JSON
// envelope, MP3 unless the voice provider is configured otherwise.
func (s *Server) handleChatSpeak(w http.ResponseWriter, r *http.Request) {
	req, p, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.VoiceID
	}
	if voiceID == "" {
		voiceID = s.cfg.ElevenLabs.DefaultVoiceID
	}
	if voiceID == "" {
		writeError(w, http.StatusUnprocessableEntity, "persona has no cloned voice and no default is configured")
		return
	}

	start := time.Now()
	reply, err := s.chat.SpokenReply(r.Context(), p, req.Messages, voiceID)
	s.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "llm", "chat_speak")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), "llm", "chat_speak", "ok")

	writeJSON(w, http.StatusOK, struct {
		PersonaID string `json:"persona_id"`
		Text      string `json:"text"`
		Audio     string `json:"audio"`
	}{
		PersonaID: p.ID,
		Text:      reply.Text,
		Audio:     base64.StdEncoding.EncodeToString(reply.Audio),
	})
}
