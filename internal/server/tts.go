package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/technolifts/presence/pkg/audio"
)

// defaultOptimizeSeconds is how much audio the optimize endpoint keeps when
// the client does not ask for a specific duration. Matches the sample length
// the cloning pipeline was tuned for.
const defaultOptimizeSeconds = 90

// ttsRequest is the body of POST /api/tts. Exactly one of voice_id or
// voice_name should be set; with neither, the configured default voice is
// used when there is one.
type ttsRequest struct {
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id,omitempty"`
	VoiceName string `json:"voice_name,omitempty"`
}

// handleTTS synthesizes speech and returns it as an MP3 download.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveTTS(w, r, req)
}

// handleTTSDownload is the browser-friendly variant: the same synthesis
// driven by query parameters, so a plain link can fetch speech.
func (s *Server) handleTTSDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.serveTTS(w, r, ttsRequest{
		Text:      q.Get("text"),
		VoiceID:   q.Get("voice_id"),
		VoiceName: q.Get("voice_name"),
	})
}

func (s *Server) serveTTS(w http.ResponseWriter, r *http.Request, req ttsRequest) {
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	voiceID, ok := s.resolveVoice(w, r, req.VoiceID, req.VoiceName)
	if !ok {
		return
	}

	start := time.Now()
	data, err := s.voice.Synthesize(r.Context(), req.Text, voiceID)
	s.metrics.SynthesisDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "voice", "synthesize")
		writeError(w, http.StatusBadGateway, "synthesize speech: "+err.Error())
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), "voice", "synthesize", "ok")

	w.Header().Set("Content-Disposition", `attachment; filename=speech.mp3`)
	writeAudio(w, "audio/mpeg", data)
}

// resolveVoice picks the voice to synthesize with: an explicit ID wins, then
// a catalogue lookup by name, then the configured default. Writes the error
// response itself and reports whether the caller should continue.
func (s *Server) resolveVoice(w http.ResponseWriter, r *http.Request, voiceID, voiceName string) (string, bool) {
	if voiceID != "" {
		return voiceID, true
	}
	if voiceName != "" {
		voices, err := s.voice.ListVoices(r.Context())
		if err != nil {
			s.metrics.RecordProviderError(r.Context(), "voice", "voices")
			writeError(w, http.StatusBadGateway, "list voices: "+err.Error())
			return "", false
		}
		for _, v := range voices {
			if strings.EqualFold(v.Name, voiceName) {
				return v.ID, true
			}
		}
		writeError(w, http.StatusNotFound, fmt.Sprintf("voice %q not found", voiceName))
		return "", false
	}
	if id := s.cfg.ElevenLabs.DefaultVoiceID; id != "" {
		return id, true
	}
	writeError(w, http.StatusBadRequest, "either voice_id or voice_name must be provided")
	return "", false
}

// handleOptimizeAudio prepares an uploaded recording for voice cloning: it
// trims to the requested duration (form field "duration", seconds), downmixes
// to mono, and resamples to the configured rate. The response is the reworked
// WAV; X-Audio-* headers carry the resulting format so clients can sanity
// check without decoding.
func (s *Server) handleOptimizeAudio(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	data, _, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}

	seconds := defaultOptimizeSeconds
	if v := r.FormValue("duration"); v != "" {
		seconds, err = strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive integer of seconds")
			return
		}
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if limit := seconds * rate; len(samples) > limit {
		samples = samples[:limit]
	}

	targetRate := s.cfg.Audio.TargetSampleRate
	if targetRate <= 0 {
		targetRate = audio.DefaultSampleRate
	}
	samples = audio.Resample(samples, rate, targetRate)

	out, err := audio.EncodeWAV(samples, targetRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	info, err := audio.Info(out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename=optimized_audio.wav`)
	w.Header().Set("X-Audio-Sample-Rate", strconv.Itoa(info.SampleRate))
	w.Header().Set("X-Audio-Channels", strconv.Itoa(info.Channels))
	w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(info.Duration().Milliseconds(), 10))
	writeAudio(w, "audio/wav", out)
}
