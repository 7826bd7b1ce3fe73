package interview

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by Manager lookups for unknown session IDs,
// including sessions already evicted by the janitor.
var ErrSessionNotFound = errors.New("interview: session not found")

// defaultJanitorInterval is how often the janitor scans for idle sessions.
const defaultJanitorInterval = time.Minute

// Manager tracks live recording sessions. Sessions live in memory only;
// the janitor evicts any session idle for longer than the configured TTL.
// All exported methods are safe for concurrent use.
type Manager struct {
	ttl             time.Duration
	janitorInterval time.Duration
	onRemove        func(*Session)

	mu        sync.Mutex
	questions []string
	sessions  map[string]*Session

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithTTL sets the idle TTL after which sessions are evicted. Zero or
// negative disables eviction.
func WithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = d }
}

// WithJanitorInterval sets how often the janitor scans for idle sessions.
// Used by tests to shorten the loop.
func WithJanitorInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.janitorInterval = d }
}

// WithOnRemove registers fn to run whenever a session leaves the manager,
// whether deleted explicitly or evicted by the janitor. Used to keep the
// active-session gauge honest. fn must not call back into the Manager.
func WithOnRemove(fn func(*Session)) ManagerOption {
	return func(m *Manager) { m.onRemove = fn }
}

// NewManager creates a Manager whose sessions use the given question script.
func NewManager(questions []string, opts ...ManagerOption) *Manager {
	m := &Manager{
		questions:       questions,
		ttl:             30 * time.Minute,
		janitorInterval: defaultJanitorInterval,
		sessions:        make(map[string]*Session),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session for personaName and registers it. The session
// snapshots the script in effect at creation time; a later
// [Manager.SetQuestions] does not touch it.
func (m *Manager) Create(personaName string) (*Session, error) {
	m.mu.Lock()
	qs := m.questions
	m.mu.Unlock()

	s, err := NewSession(personaName, qs)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()

	slog.Info("interview session created",
		"session_id", s.ID(),
		"persona", personaName,
		"questions", len(qs),
		"live_sessions", count,
	)
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes the session with the given ID.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if m.onRemove != nil {
		m.onRemove(s)
	}
	slog.Info("interview session deleted", "session_id", id, "live_sessions", count)
	return nil
}

// SetQuestions replaces the script used by sessions created from now on.
// Sessions already in flight keep the script they started with.
func (m *Manager) SetQuestions(questions []string) {
	qs := slices.Clone(questions)
	m.mu.Lock()
	m.questions = qs
	m.mu.Unlock()
}

// QuestionCount returns the length of the script new sessions will use.
func (m *Manager) QuestionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions)
}

// List returns a snapshot of live sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return a.CreatedAt().Compare(b.CreatedAt())
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the janitor loop. It runs until ctx is cancelled or
// [Manager.Stop] is called. No-op when eviction is disabled.
func (m *Manager) Start(ctx context.Context) {
	if m.ttl <= 0 {
		close(m.done)
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	go m.janitor(ctx)
}

// Stop halts the janitor loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}

// janitor periodically evicts sessions idle for longer than the TTL.
func (m *Manager) janitor(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle(time.Now().UTC())
		}
	}
}

// evictIdle removes every session whose last activity is older than the TTL.
func (m *Manager) evictIdle(now time.Time) {
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, s)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, s := range evicted {
		if m.onRemove != nil {
			m.onRemove(s)
		}
		slog.Info("interview session expired", "session_id", s.ID(), "ttl", m.ttl, "live_sessions", count)
	}
}
