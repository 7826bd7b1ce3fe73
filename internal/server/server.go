// Package server exposes the Presence HTTP API and the TTS WebSocket relay.
//
// The route surface mirrors the original voice-processing API: multipart
// uploads for audio, JSON envelopes everywhere else, and an x-api-key header
// for authentication. Handlers translate domain errors into status codes and
// record provider traffic through the observe instruments.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technolifts/presence/internal/chat"
	"github.com/technolifts/presence/internal/config"
	"github.com/technolifts/presence/internal/docparse"
	"github.com/technolifts/presence/internal/health"
	"github.com/technolifts/presence/internal/interview"
	"github.com/technolifts/presence/internal/observe"
	"github.com/technolifts/presence/internal/persona"
	"github.com/technolifts/presence/pkg/provider/voice"
)

// Defaults applied when the corresponding config field is zero.
const (
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 60 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultMaxUploadBytes = 32 << 20
	defaultCombineTimeout = 30 * time.Second
)

// jsonMaxBytes caps JSON request bodies. Generous for chat histories while
// still bounded; audio travels through the multipart endpoints, never here.
const jsonMaxBytes = 1 << 20

// Deps bundles everything the handlers need. Metrics and Health fall back to
// defaults when nil; every other field is required.
type Deps struct {
	Config   *config.Config
	Voice    voice.Provider
	Chat     *chat.Service
	Sessions *interview.Manager
	Personas *persona.Store
	Parser   *docparse.Parser
	Metrics  *observe.Metrics
	Health   *health.Handler
}

// Server is the Presence HTTP front end. Create with [New], run with
// [Server.Start], and stop with [Server.Shutdown].
type Server struct {
	http     *http.Server
	cfg      *config.Config
	voice    voice.Provider
	chat     *chat.Service
	sessions *interview.Manager
	personas *persona.Store
	parser   *docparse.Parser
	metrics  *observe.Metrics

	maxUpload      int64
	combineTimeout time.Duration
}

// New builds the server from its dependencies: routes, middleware, and the
// timeouts from config.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("server: config is required")
	case deps.Voice == nil:
		return nil, errors.New("server: voice provider is required")
	case deps.Chat == nil:
		return nil, errors.New("server: chat service is required")
	case deps.Sessions == nil:
		return nil, errors.New("server: session manager is required")
	case deps.Personas == nil:
		return nil, errors.New("server: persona store is required")
	case deps.Parser == nil:
		return nil, errors.New("server: document parser is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}

	cfg := deps.Config
	s := &Server{
		cfg:            cfg,
		voice:          deps.Voice,
		chat:           deps.Chat,
		sessions:       deps.Sessions,
		personas:       deps.Personas,
		parser:         deps.Parser,
		metrics:        deps.Metrics,
		maxUpload:      cfg.Server.MaxUploadBytes,
		combineTimeout: time.Duration(cfg.Audio.CombineTimeoutSeconds) * time.Second,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}
	if s.combineTimeout <= 0 {
		s.combineTimeout = defaultCombineTimeout
	}

	readTimeout := time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.routes(deps.Health),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	return s, nil
}

// routes assembles the mux and wraps it in the middleware chain. Telemetry
// sits outermost so rejected requests still show up in metrics and traces.
func (s *Server) routes(hc *health.Handler) http.Handler {
	mux := http.NewServeMux()

	hc.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions", limitBody(jsonMaxBytes, s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionProgress)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/answers", limitBody(s.maxUpload, s.handleAddAnswer))
	mux.HandleFunc("POST /api/sessions/{id}/combine", s.handleCombine)

	mux.HandleFunc("POST /api/transcribe", limitBody(s.maxUpload, s.handleTranscribe))
	mux.HandleFunc("GET /api/voices", s.handleListVoices)
	mux.HandleFunc("POST /api/voices/clone", limitBody(s.maxUpload, s.handleCloneVoice))

	mux.HandleFunc("POST /api/chat", limitBody(jsonMaxBytes, s.handleChat))
	mux.HandleFunc("POST /api/chat/speak", limitBody(jsonMaxBytes, s.handleChatSpeak))
	mux.HandleFunc("POST /api/tts", limitBody(jsonMaxBytes, s.handleTTS))
	mux.HandleFunc("GET /api/tts/download", s.handleTTSDownload)
	mux.HandleFunc("POST /api/optimize-audio", limitBody(s.maxUpload, s.handleOptimizeAudio))

	mux.HandleFunc("GET /api/personas", s.handleListPersonas)
	mux.HandleFunc("POST /api/personas", limitBody(jsonMaxBytes, s.handleCreatePersona))
	mux.HandleFunc("GET /api/personas/{id}", s.handleGetPersona)
	mux.HandleFunc("DELETE /api/personas/{id}", s.handleDeletePersona)
	mux.HandleFunc("POST /api/personas/{id}/documents", limitBody(s.maxUpload, s.handleUploadDocument))

	mux.HandleFunc("GET /ws/tts", s.handleTTSStream)

	var h http.Handler = mux
	h = s.requireAPIKey(h)
	h = observe.Middleware(s.metrics)(h)
	return h
}

// Handler returns the root handler with middleware applied. Exposed so tests
// can drive the full stack through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening in a background goroutine. The returned channel
// yields the terminal serve error, or nil after a clean Shutdown.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)

	tlsCfg := s.cfg.Server.TLS
	go func() {
		var err error
		if tlsCfg != nil {
			err = s.http.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	slog.Info("http server listening",
		"addr", s.http.Addr,
		"tls", tlsCfg != nil,
	)
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
