package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/technolifts/presence/internal/interview"
	"github.com/technolifts/presence/pkg/audio"
)

// sessionBody is the JSON shape of an interview session: identity, script,
// and progress in one envelope so clients never need a second request to
// learn the next question.
type sessionBody struct {
	SessionID    string    `json:"session_id"`
	PersonaName  string    `json:"persona_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Questions    []string  `json:"questions"`
	Answered     int       `json:"answered"`
	Total        int       `json:"total"`
	Done         bool      `json:"done"`
	NextQuestion string    `json:"next_question,omitempty"`
}

func sessionJSON(sess *interview.Session) sessionBody {
	p := sess.Progress()
	return sessionBody{
		SessionID:    sess.ID(),
		PersonaName:  sess.PersonaName(),
		CreatedAt:    sess.CreatedAt(),
		Questions:    sess.Questions(),
		Answered:     p.Answered,
		Total:        p.Total,
		Done:         p.Done,
		NextQuestion: p.NextQuestion,
	}
}

// lookupSession resolves the {id} path value, writing a 404 when the session
// does not exist or has been evicted.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*interview.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// handleCreateSession starts a recording session. The body is optional JSON
// naming the persona the recordings are for.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonaName string `json:"persona_name"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Create(req.PersonaName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	writeJSON(w, http.StatusCreated, sessionJSON(sess))
}

// handleSessionProgress reports how far a session has advanced. Polling
// counts as activity, so the janitor leaves watched sessions alone.
func (s *Server) handleSessionProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.Touch()
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// handleDeleteSession abandons a session before completion.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddAnswer records one uploaded answer. Multipart fields:
// question_index (required), file (required), transcribe (optional bool,
// runs the recording through speech-to-text before storing).
func (s *Server) handleAddAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}

	idx, err := strconv.Atoi(r.FormValue("question_index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "question_index must be an integer")
		return
	}
	data, filename, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}

	var transcript string
	if formBool(r, "transcribe") {
		start := time.Now()
		t, err := s.voice.Transcribe(r.Context(), data, filename)
		s.metrics.TranscriptionDuration.Record(r.Context(), time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordProviderError(r.Context(), "voice", "transcribe")
			writeError(w, http.StatusBadGateway, "transcribe answer: "+err.Error())
			return
		}
		s.metrics.RecordProviderRequest(r.Context(), "voice", "transcribe", "ok")
		transcript = t.Text
	}

	if err := sess.AddAnswer(idx, data, transcript); err != nil {
		var oo *interview.OutOfOrderError
		if errors.As(err, &oo) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(sess))
}

// handleCombine stitches the session's answers, in question order, into one
// WAV download. Client-fixable problems (nothing recorded, a broken upload)
// map to 422 so callers can tell them apart from server failures.
func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.combineTimeout)
	defer cancel()

	var opts []audio.Option
	if s.cfg.Audio.ResampleOnMismatch {
		rate := s.cfg.Audio.TargetSampleRate
		if rate <= 0 {
			rate = audio.DefaultSampleRate
		}
		opts = append(opts, audio.WithResampleTo(rate))
	}

	start := time.Now()
	wav, err := sess.Combine(ctx, opts...)
	if err != nil {
		var de *audio.DecodeError
		var ee *audio.EncodeError
		switch {
		case errors.Is(err, audio.ErrNoSegments):
			writeError(w, http.StatusUnprocessableEntity, "no recorded answers to combine")
		case errors.As(err, &de):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &ee):
			writeError(w, http.StatusInternalServerError, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "combine timed out")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.metrics.RecordCombine(r.Context(), time.Since(start).Seconds(), len(sess.Answers()))

	writeAudio(w, "audio/wav", wav)
}
