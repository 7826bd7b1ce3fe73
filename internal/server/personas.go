package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/technolifts/presence/internal/docparse"
	"github.com/technolifts/presence/internal/observe"
	"github.com/technolifts/presence/internal/persona"
)

// personaSummary is the list-view shape: enough to render a picker without
// shipping every interview transcript.
type personaSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VoiceID   string    `json:"voice_id,omitempty"`
	Documents int       `json:"documents"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleListPersonas returns summaries of every stored persona.
func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	all, err := s.personas.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]personaSummary, 0, len(all))
	for _, p := range all {
		summaries = append(summaries, personaSummary{
			ID:        p.ID,
			Name:      p.Name,
			VoiceID:   p.VoiceID,
			Documents: len(p.Documents),
			UpdatedAt: p.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Personas []personaSummary `json:"personas"`
	}{Personas: summaries})
}

// handleCreatePersona creates an empty persona profile to hang interviews,
// voices, and documents on.
func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p := persona.New(req.Name)
	if err := s.personas.Put(p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// lookupPersona resolves the {id} path value, writing a 404 for unknown IDs.
func (s *Server) lookupPersona(w http.ResponseWriter, r *http.Request) (*persona.Persona, bool) {
	p, err := s.personas.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			writeError(w, http.StatusNotFound, "persona not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return p, true
}

// handleGetPersona returns the full persona record.
func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPersona(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePersona removes the profile. Uploaded document files stay on
// disk; only the persona record and its excerpts go away.
func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.personas.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			writeError(w, http.StatusNotFound, "persona not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadDocument attaches a background document to a persona: the raw
// file is kept under the documents directory and an extracted excerpt joins
// the persona's grounding material. Multipart field: file.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPersona(w, r)
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	data, filename, err := readFormFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "upload has no usable filename")
		return
	}

	text, err := s.parser.Parse(filename, data)
	if err != nil {
		var tle *docparse.TooLargeError
		var ute *docparse.UnsupportedTypeError
		switch {
		case errors.As(err, &tle):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.As(err, &ute):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	excerpt := docparse.Excerpt(text, docparse.DefaultExcerptChars)

	if err := s.saveDocument(p.ID, filename, data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Re-uploading a document replaces its excerpt instead of stacking
	// duplicates in the prompt.
	replaced := false
	for i, doc := range p.Documents {
		if doc.Filename == filename {
			p.Documents[i].Excerpt = excerpt
			replaced = true
			break
		}
	}
	if !replaced {
		p.Documents = append(p.Documents, persona.DocumentExcerpt{
			Filename: filename,
			Excerpt:  excerpt,
		})
	}
	if err := s.personas.Put(p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	observe.Logger(r.Context()).Info("document attached",
		"persona_id", p.ID,
		"filename", filename,
		"excerpt_chars", len(excerpt),
	)
	writeJSON(w, http.StatusCreated, struct {
		Filename  string `json:"filename"`
		Documents int    `json:"documents"`
	}{Filename: filename, Documents: len(p.Documents)})
}

// saveDocument writes the raw upload under the documents directory, one
// subdirectory per persona.
func (s *Server) saveDocument(personaID, filename string, data []byte) error {
	dir := filepath.Join(s.cfg.Storage.DocumentsDir, personaID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filename), data, 0o644)
}
