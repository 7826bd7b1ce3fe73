// Package persona stores digital-twin profiles and renders them into system
// prompts. A persona is what the interview produces: a name, a cloned voice,
// the interview transcript, and excerpts from any uploaded documents.
package persona

import (
	"time"

	"github.com/google/uuid"
)

// QA is one interview question with the persona's transcribed answer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DocumentExcerpt is a trimmed extract from an uploaded context document.
type DocumentExcerpt struct {
	// Filename is the original upload name, kept for display.
	Filename string `json:"filename"`
	// Excerpt is the extracted text, capped to the prompt budget.
	Excerpt string `json:"excerpt"`
}

// Persona is a stored digital-twin profile.
type Persona struct {
	// ID is the persona's unique identifier, also its filename in the store.
	ID string `json:"id"`

	// Name is the display name the twin speaks as.
	Name string `json:"name"`

	// VoiceID is the cloned ElevenLabs voice, empty until cloning succeeds.
	VoiceID string `json:"voice_id,omitempty"`

	// Interview holds the transcribed Q/A pairs from the recording session.
	Interview []QA `json:"interview,omitempty"`

	// Documents holds excerpts from uploaded context documents.
	Documents []DocumentExcerpt `json:"documents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a persona with a fresh ID and creation timestamp.
func New(name string) *Persona {
	now := time.Now().UTC()
	return &Persona{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
