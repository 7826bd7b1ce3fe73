// Package interview manages voice-interview recording sessions: one ordered
// answer per scripted question, combined into a single WAV track once the
// script is complete. Sessions are held in memory by a [Manager] and expire
// after an idle TTL.
package interview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technolifts/presence/pkg/audio"
)

// OutOfOrderError is returned by [Session.AddAnswer] when an answer arrives
// for a question beyond the next unanswered one. The caller can tell the
// client which question to record instead.
type OutOfOrderError struct {
	// Index is the rejected question index.
	Index int
	// Next is the question index the session expects.
	Next int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("interview: answer for question %d out of order, next expected question is %d", e.Index, e.Next)
}

// Answer is one recorded reply to a scripted question.
type Answer struct {
	// QuestionIndex is the position of the question this answers.
	QuestionIndex int

	// Audio is the encoded recording as uploaded.
	Audio []byte

	// Transcript is the recognised text of the recording. Empty when the
	// upload was stored without transcription.
	Transcript string
}

// Progress describes how far a session has advanced through its script.
type Progress struct {
	// Answered is the number of questions answered so far.
	Answered int
	// Total is the number of questions in the script.
	Total int
	// Done reports whether every question has an answer.
	Done bool
	// NextQuestion is the text of the next unanswered question, empty once
	// the script is complete.
	NextQuestion string
}

// Session is one live recording session. Answers must arrive in script
// order; a question that already has an answer may be re-recorded. All
// methods are safe for concurrent use.
type Session struct {
	id          string
	personaName string
	createdAt   time.Time
	questions   []string

	mu         sync.Mutex
	answers    []Answer
	cursor     int // next question index awaiting a first answer
	lastActive time.Time
}

// NewSession creates a session for personaName over the given question
// script. The script must not be empty.
func NewSession(personaName string, questions []string) (*Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("interview: session needs at least one question")
	}
	qs := make([]string, len(questions))
	copy(qs, questions)
	now := time.Now().UTC()
	return &Session{
		id:          uuid.NewString(),
		personaName: personaName,
		createdAt:   now,
		questions:   qs,
		lastActive:  now,
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// PersonaName returns the persona name the session was created for.
func (s *Session) PersonaName() string { return s.personaName }

// CreatedAt returns the session creation time (UTC).
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Questions returns the session's question script in order.
func (s *Session) Questions() []string {
	qs := make([]string, len(s.questions))
	copy(qs, s.questions)
	return qs
}

// AddAnswer records audio as the answer to question questionIdx. Answers
// must arrive in script order: the first answer for a question is accepted
// only when questionIdx is the next unanswered index, and re-recording an
// already answered question replaces the stored blob. Answers past the
// cursor return an *OutOfOrderError.
func (s *Session) AddAnswer(questionIdx int, audioBlob []byte, transcript string) error {
	if questionIdx < 0 || questionIdx >= len(s.questions) {
		return fmt.Errorf("interview: question index %d out of range, script has %d questions", questionIdx, len(s.questions))
	}
	if len(audioBlob) == 0 {
		return fmt.Errorf("interview: empty audio for question %d", questionIdx)
	}

	// Callers keep the blob after upload handling; copy so later reuse of
	// the request buffer cannot corrupt the stored answer.
	blob := make([]byte, len(audioBlob))
	copy(blob, audioBlob)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case questionIdx > s.cursor:
		return &OutOfOrderError{Index: questionIdx, Next: s.cursor}
	case questionIdx == s.cursor:
		s.answers = append(s.answers, Answer{
			QuestionIndex: questionIdx,
			Audio:         blob,
			Transcript:    transcript,
		})
		s.cursor++
	default:
		// Re-recording: replace in place so order is preserved.
		s.answers[questionIdx] = Answer{
			QuestionIndex: questionIdx,
			Audio:         blob,
			Transcript:    transcript,
		}
	}
	s.lastActive = time.Now().UTC()
	return nil
}

// Answers returns the recorded answers in question order.
func (s *Session) Answers() []Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Progress reports how far the session has advanced.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		Answered: s.cursor,
		Total:    len(s.questions),
		Done:     s.cursor >= len(s.questions),
	}
	if !p.Done {
		p.NextQuestion = s.questions[s.cursor]
	}
	return p
}

// Combine concatenates the session's recorded answers, in question order,
// into a single mono 16-bit PCM WAV via [audio.Combine]. Options are passed
// through, so the caller decides the resample policy.
func (s *Session) Combine(ctx context.Context, opts ...audio.Option) ([]byte, error) {
	s.mu.Lock()
	segments := make([][]byte, len(s.answers))
	for i, a := range s.answers {
		segments[i] = a.Audio
	}
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	return audio.Combine(ctx, segments, opts...)
}

// Touch marks the session as recently used so the janitor does not evict it.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// idleSince returns the last time the session was used.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
