package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/technolifts/presence/internal/observe"
)

// The /ws/tts protocol. The client opens with a start message naming the
// voice, then sends speak messages; the server answers each with binary
// audio frames followed by a chunk_completed marker. An end message closes
// the session cleanly. Server-side problems arrive as error messages on the
// same socket.
const (
	wsTypeStart          = "start"
	wsTypeSpeak          = "speak"
	wsTypeEnd            = "end"
	wsTypeReady          = "ready"
	wsTypeChunkCompleted = "chunk_completed"
	wsTypeCompleted      = "completed"
	wsTypeError          = "error"
)

// wsClientMessage is every shape the client may send; Type picks the fields
// that matter.
type wsClientMessage struct {
	Type      string `json:"type"`
	VoiceID   string `json:"voice_id,omitempty"`
	VoiceName string `json:"voice_name,omitempty"`
	Text      string `json:"text,omitempty"`
}

// wsServerMessage is the server's text frame shape.
type wsServerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// handleTTSStream relays speak messages to the voice provider's synthesis
// stream, forwarding audio frames to the client as they arrive.
func (s *Server) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	// The server's write timeout would kill a long-lived socket; lift the
	// deadlines before the connection is hijacked.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	log := observe.Logger(ctx)

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	voiceID, ok := s.wsHandshake(ctx, conn)
	if !ok {
		return
	}
	log.Info("tts stream opened", "voice_id", voiceID)

	for {
		msg, err := wsRead(ctx, conn)
		if err != nil {
			log.Debug("tts stream closed", "error", err)
			return
		}
		if msg == nil {
			// Unparseable frame; the client was told, keep the session.
			if err := wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: "invalid JSON message"}); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case wsTypeSpeak:
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			if err := s.speakOver(ctx, conn, msg.Text, voiceID); err != nil {
				log.Debug("tts stream write failed", "error", err)
				return
			}
		case wsTypeEnd:
			_ = wsSend(ctx, conn, wsServerMessage{Type: wsTypeCompleted, Message: "text-to-speech session ended"})
			conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		default:
			if err := wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: fmt.Sprintf("unknown message type %q", msg.Type)}); err != nil {
				return
			}
		}
	}
}

// wsHandshake consumes the start message and resolves the session voice.
// A broken handshake closes the socket with a policy violation.
func (s *Server) wsHandshake(ctx context.Context, conn *websocket.Conn) (string, bool) {
	msg, err := wsRead(ctx, conn)
	if err != nil {
		return "", false
	}
	if msg == nil || msg.Type != wsTypeStart {
		_ = wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: "expected a start message"})
		conn.Close(websocket.StatusPolicyViolation, "expected start")
		return "", false
	}

	voiceID := msg.VoiceID
	if voiceID == "" && msg.VoiceName != "" {
		voices, err := s.voice.ListVoices(ctx)
		if err != nil {
			_ = wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: "list voices: " + err.Error()})
			conn.Close(websocket.StatusInternalError, "voice lookup failed")
			return "", false
		}
		for _, v := range voices {
			if strings.EqualFold(v.Name, msg.VoiceName) {
				voiceID = v.ID
				break
			}
		}
		if voiceID == "" {
			_ = wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: fmt.Sprintf("voice %q not found", msg.VoiceName)})
			conn.Close(websocket.StatusPolicyViolation, "unknown voice")
			return "", false
		}
	}
	if voiceID == "" {
		voiceID = s.cfg.ElevenLabs.DefaultVoiceID
	}
	if voiceID == "" {
		_ = wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: "either voice_id or voice_name must be provided"})
		conn.Close(websocket.StatusPolicyViolation, "no voice")
		return "", false
	}

	if err := wsSend(ctx, conn, wsServerMessage{Type: wsTypeReady, Message: "ready to receive text"}); err != nil {
		return "", false
	}
	return voiceID, true
}

// speakOver synthesizes one speak message and forwards the audio frames.
// The returned error is fatal to the session; provider failures are reported
// on the socket instead.
func (s *Server) speakOver(ctx context.Context, conn *websocket.Conn, text, voiceID string) error {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	start := time.Now()
	audioCh, err := s.voice.SynthesizeStream(ctx, textCh, voiceID)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "voice", "stream")
		return wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: "synthesize: " + err.Error()})
	}

	frames := 0
	for chunk := range audioCh {
		if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
			return err
		}
		frames++
	}
	s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordProviderRequest(ctx, "voice", "stream", "ok")

	if frames == 0 {
		// The provider closed the stream without audio; tell the client
		// rather than leaving an empty chunk marker unexplained.
		return wsSend(ctx, conn, wsServerMessage{Type: wsTypeError, Message: "synthesis produced no audio"})
	}
	return wsSend(ctx, conn, wsServerMessage{Type: wsTypeChunkCompleted, Message: "audio chunk completed"})
}

// wsRead reads one text frame. A nil message with nil error means the frame
// was not valid JSON for the protocol; the session can continue.
func wsRead(ctx context.Context, conn *websocket.Conn) (*wsClientMessage, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, nil
	}
	var msg wsClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil
	}
	return &msg, nil
}

// wsSend marshals and writes one protocol message.
func wsSend(ctx context.Context, conn *websocket.Conn, msg wsServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
