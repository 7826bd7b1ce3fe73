package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/technolifts/presence/internal/observe"
	"github.com/technolifts/presence/internal/persona"
	"github.com/technolifts/presence/pkg/audio"
	"github.com/technolifts/presence/pkg/provider/voice"
	"github.com/technolifts/presence/pkg/types"
)

// minCloneSeconds is the sample length below which clone quality degrades
// noticeably. Short uploads still go through; the server just logs a warning
// with the measured duration.
const minCloneSeconds = 30.0

// handleTranscribe runs an uploaded recording through speech-to-text.
// Multipart field: file. Response: {"text": ..., "language": ...}.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	data, filename, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}

	start := time.Now()
	t, err := s.voice.Transcribe(r.Context(), data, filename)
	s.metrics.TranscriptionDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "voice", "transcribe")
		writeError(w, http.StatusBadGateway, "transcribe audio: "+err.Error())
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), "voice", "transcribe", "ok")

	writeJSON(w, http.StatusOK, struct {
		Text     string `json:"text"`
		Language string `json:"language,omitempty"`
	}{Text: t.Text, Language: t.Language})
}

// handleListVoices returns the provider's voice catalogue, stock and cloned.
func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.voice.ListVoices(r.Context())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "voice", "voices")
		writeError(w, http.StatusBadGateway, "list voices: "+err.Error())
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), "voice", "voices", "ok")

	writeJSON(w, http.StatusOK, struct {
		Voices []types.VoiceProfile `json:"voices"`
	}{Voices: voices})
}

// handleCloneVoice creates a cloned voice from uploaded samples. Multipart
// fields: name (required), files (one or more sample parts; a single part
// named file also works), description (optional), persona_id (optional;
// attaches the voice to an existing persona instead of creating one).
//
// On success the clone is recorded on a persona so later chat and TTS calls
// can speak with it.
func (s *Server) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	name := r.FormValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name field is required")
		return
	}

	samples, err := sampleParts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(samples) == 0 {
		writeError(w, http.StatusBadRequest, "at least one sample file is required")
		return
	}
	s.warnShortSamples(r, samples)

	profile, err := s.voice.CloneVoice(r.Context(), name, r.FormValue("description"), samples)
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "voice", "clone")
		if errors.Is(err, voice.ErrUploadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "clone voice: "+err.Error())
		return
	}
	s.metrics.RecordProviderRequest(r.Context(), "voice", "clone", "ok")

	p, err := s.attachVoice(r.FormValue("persona_id"), name, profile.ID)
	if err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			writeError(w, http.StatusNotFound, "persona not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		VoiceID   string `json:"voice_id"`
		Name      string `json:"name"`
		PersonaID string `json:"persona_id"`
	}{VoiceID: profile.ID, Name: profile.Name, PersonaID: p.ID})
}

// sampleParts collects every uploaded sample: all parts named "files" plus a
// lone "file" part for single-sample clients.
func sampleParts(r *http.Request) ([][]byte, error) {
	if r.MultipartForm == nil {
		return nil, errors.New("multipart form is required")
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}

	samples := make([][]byte, 0, len(headers))
	for _, hdr := range headers {
		data, err := readPart(hdr)
		if err != nil {
			return nil, err
		}
		samples = append(samples, data)
	}
	return samples, nil
}

func readPart(hdr *multipart.FileHeader) ([]byte, error) {
	f, err := hdr.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// warnShortSamples measures the combined duration of the WAV samples and
// logs when there is less than [minCloneSeconds] of speech. Non-WAV samples
// cannot be measured without decoding, so they are skipped.
func (s *Server) warnShortSamples(r *http.Request, samples [][]byte) {
	var total float64
	measured := 0
	for _, sample := range samples {
		info, err := audio.Info(sample)
		if err != nil {
			continue
		}
		total += info.Duration().Seconds()
		measured++
	}
	if measured > 0 && total < minCloneSeconds {
		observe.Logger(r.Context()).Warn("clone samples are short, quality may suffer",
			"total_seconds", total,
			"samples", len(samples),
		)
	}
}

// attachVoice records the cloned voice on a persona: the named one when
// personaID is set, otherwise a freshly created profile.
func (s *Server) attachVoice(personaID, name, voiceID string) (*persona.Persona, error) {
	var p *persona.Persona
	if personaID != "" {
		var err error
		p, err = s.personas.Get(personaID)
		if err != nil {
			return nil, err
		}
	} else {
		p = persona.New(name)
	}
	p.VoiceID = voiceID
	if err := s.personas.Put(p); err != nil {
		return nil, err
	}
	return p, nil
}
