// Package app wires all Presence subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// Providers come from main.go via the config registry. For testing, inject
// mock providers through the Providers struct and a private meter through
// WithMetrics; storage lands wherever the config points, so tests use
// temporary directories.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/technolifts/presence/internal/chat"
	"github.com/technolifts/presence/internal/config"
	"github.com/technolifts/presence/internal/docparse"
	"github.com/technolifts/presence/internal/health"
	"github.com/technolifts/presence/internal/interview"
	"github.com/technolifts/presence/internal/observe"
	"github.com/technolifts/presence/internal/persona"
	"github.com/technolifts/presence/internal/server"
	"github.com/technolifts/presence/pkg/provider/llm"
	"github.com/technolifts/presence/pkg/provider/voice"
)

// Storage locations used when the config leaves them empty. Relative to the
// working directory, matching the layout the service has always shipped with.
const (
	defaultProfilesDir  = "data/profiles"
	defaultDocumentsDir = "data/documents"
)

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry; tests pass mocks directly.
type Providers struct {
	// Voice handles synthesis, transcription, cloning, and the voice
	// catalogue. Typically ElevenLabs, possibly wrapped in a fallback group.
	Voice voice.Provider

	// LLM generates persona chat replies.
	LLM llm.Provider
}

// App owns all subsystem lifetimes behind the Presence HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	personas *persona.Store
	sessions *interview.Manager
	chat     *chat.Service
	server   *server.Server

	// telemetryShutdown flushes the OTel SDK. Nil when metrics were injected.
	telemetryShutdown func(context.Context) error

	// closers are run in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a Metrics instance instead of initialising the global
// OTel SDK. Tests use this with a private meter provider so parallel app
// instances never share instruments or the process-wide Prometheus registry.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together: telemetry, storage
// directories, the persona store, the interview session manager, the chat
// service, and the HTTP server. Initialisation is synchronous except for the
// session janitor, which starts its sweep loop under ctx.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("app: config is required")
	case providers == nil:
		return nil, errors.New("app: providers are required")
	case providers.Voice == nil:
		return nil, errors.New("app: voice provider is required; configure elevenlabs.api_key")
	case providers.LLM == nil:
		return nil, errors.New("app: llm provider is required; configure llm.provider")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	a.initSessions(ctx)
	a.initChat()

	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	return a, nil
}

// initTelemetry installs the global OTel SDK and creates the metric
// instruments, unless a Metrics instance was injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: a.cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return err
	}
	a.telemetryShutdown = shutdown
	a.metrics = observe.DefaultMetrics()
	return nil
}

// initStorage fills in default storage paths, creates the directories, and
// opens the persona store. The documents directory is created here even
// though uploads create per-persona subdirectories later, so the readiness
// probe can verify the volume before the first upload.
func (a *App) initStorage() error {
	if a.cfg.Storage.ProfilesDir == "" {
		a.cfg.Storage.ProfilesDir = defaultProfilesDir
	}
	if a.cfg.Storage.DocumentsDir == "" {
		a.cfg.Storage.DocumentsDir = defaultDocumentsDir
	}

	store, err := persona.NewStore(a.cfg.Storage.ProfilesDir)
	if err != nil {
		return err
	}
	a.personas = store

	if err := os.MkdirAll(a.cfg.Storage.DocumentsDir, 0o755); err != nil {
		return fmt.Errorf("create documents dir: %w", err)
	}
	return nil
}

// initSessions creates the interview session manager and starts its janitor.
// The manager decrements the active-session gauge whenever a session leaves,
// whether deleted by the client or evicted for idleness; the HTTP handler
// increments it on create, so the pair keeps the gauge honest.
func (a *App) initSessions(ctx context.Context) {
	questions := a.cfg.Interview.Questions
	if len(questions) == 0 {
		questions = interview.DefaultQuestions
	}

	mOpts := []interview.ManagerOption{
		interview.WithOnRemove(func(*interview.Session) {
			a.metrics.ActiveSessions.Add(context.Background(), -1)
		}),
	}
	if ttl := a.cfg.Interview.SessionTTLMinutes; ttl > 0 {
		mOpts = append(mOpts, interview.WithTTL(time.Duration(ttl)*time.Minute))
	}

	a.sessions = interview.NewManager(questions, mOpts...)
	a.sessions.Start(ctx)
	a.closers = append(a.closers, func() error {
		a.sessions.Stop()
		return nil
	})
}

// initChat builds the persona chat service over the LLM provider, with the
// voice provider attached for spoken replies.
func (a *App) initChat() {
	chatOpts := []chat.Option{chat.WithVoice(a.providers.Voice)}
	if t := a.cfg.LLM.Temperature; t > 0 {
		chatOpts = append(chatOpts, chat.WithTemperature(t))
	}
	if n := a.cfg.LLM.MaxTokens; n > 0 {
		chatOpts = append(chatOpts, chat.WithMaxTokens(n))
	}
	a.chat = chat.New(a.providers.LLM, chatOpts...)
}

// initServer assembles the HTTP server with readiness checks for both
// storage volumes.
func (a *App) initServer() error {
	hc := health.New(
		health.DirWritable("profiles", a.cfg.Storage.ProfilesDir),
		health.DirWritable("documents", a.cfg.Storage.DocumentsDir),
	)

	srv, err := server.New(server.Deps{
		Config:   a.cfg,
		Voice:    a.providers.Voice,
		Chat:     a.chat,
		Sessions: a.sessions,
		Personas: a.personas,
		Parser:   docparse.New(),
		Metrics:  a.metrics,
		Health:   hc,
	})
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. When ctx is done, Run returns ctx.Err(); call Shutdown to drain
// in-flight requests and stop the background loops.
func (a *App) Run(ctx context.Context) error {
	errCh := a.server.Start()

	slog.Info("app running",
		"addr", a.cfg.Server.ListenAddr,
		"questions", a.sessions.QuestionCount(),
		"profiles_dir", a.cfg.Storage.ProfilesDir,
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler returns the fully wired HTTP handler. Exposed so tests can drive
// the whole stack through httptest without binding a port.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// SetQuestions replaces the interview script for sessions created from now
// on; in-flight sessions keep the script they started with. An empty slice
// restores the built-in script. Called from the config reload path.
func (a *App) SetQuestions(questions []string) {
	if len(questions) == 0 {
		questions = interview.DefaultQuestions
	}
	a.sessions.SetQuestions(questions)
	slog.Info("interview script updated", "questions", len(questions))
}

// Shutdown drains the HTTP server, then tears down subsystems in reverse-init
// order. It respects the context deadline: if ctx expires mid-teardown,
// remaining closers are skipped and the context error is returned. Safe to
// call more than once; only the first call does the work.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		// Flush telemetry last so the teardown itself is still recorded.
		if a.telemetryShutdown != nil {
			if err := a.telemetryShutdown(ctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
