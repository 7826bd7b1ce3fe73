// Command presence is the main entry point for the Presence persona server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/technolifts/presence/internal/app"
	"github.com/technolifts/presence/internal/config"
	"github.com/technolifts/presence/internal/resilience"
	"github.com/technolifts/presence/pkg/provider/llm"
	"github.com/technolifts/presence/pkg/provider/llm/anyllm"
	openaillm "github.com/technolifts/presence/pkg/provider/llm/openai"
	"github.com/technolifts/presence/pkg/provider/voice"
	"github.com/technolifts/presence/pkg/provider/voice/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logFormat := flag.String("log-format", "text", `log output format: "text" or "json"`)
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "presence: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "presence: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can adjust it at
	// runtime. An explicit -log-level flag pins it for the process lifetime.
	level := new(slog.LevelVar)
	levelPinned := *logLevel != ""
	if levelPinned {
		flagLevel := config.LogLevel(*logLevel)
		if !flagLevel.IsValid() {
			fmt.Fprintf(os.Stderr, "presence: unknown log level %q\n", *logLevel)
			return 1
		}
		level.Set(slogLevel(flagLevel))
	} else {
		level.Set(slogLevel(cfg.Server.LogLevel))
	}

	logger, err := newLogger(*logFormat, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presence: %v\n", err)
		return 1
	}
	slog.SetDefault(logger)

	slog.Info("presence starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	// Log level and the interview script apply without a restart; everything
	// else (addresses, credentials, storage paths) needs one.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Changed() {
			return
		}
		if d.LogLevelChanged && !levelPinned {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.QuestionsChanged {
			application.SetQuestions(d.NewQuestions)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Presence. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":   {"anthropic", "openai", "ollama"},
	"voice": {"elevenlabs"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// anthropic routes through any-llm-go: optional APIKey + optional BaseURL.
	reg.RegisterLLM("anthropic", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("anthropic", entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai talks to the official client directly.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Voice ─────────────────────────────────────────────────────────────────
	reg.RegisterVoice("elevenlabs", func(entry config.ProviderEntry) (voice.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		if voiceID := optString(entry.Options, "default_voice_id"); voiceID != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voiceID))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Both slots are wrapped in circuit-breaker chains: the LLM chain
// fails over to cfg.llm.fallbacks in order, the voice chain fails fast once
// ElevenLabs stops responding.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	name := string(cfg.LLM.Provider)
	if name == "" {
		return nil, errors.New("llm.provider is not configured")
	}
	primary, err := reg.CreateLLM(cfg.LLM.Entry())
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.LLM.Model)

	chain := resilience.NewLLMFallback(primary, name, resilience.FallbackConfig{})
	for _, fb := range cfg.LLM.Fallbacks {
		fbName := string(fb.Provider)
		p, err := reg.CreateLLM(fb.Entry())
		if err != nil {
			return nil, fmt.Errorf("create fallback llm provider %q: %w", fbName, err)
		}
		chain.AddFallback(fbName, p)
		slog.Info("provider created", "kind", "llm", "name", fbName, "model", fb.Model, "role", "fallback")
	}
	ps.LLM = chain

	speech, err := reg.CreateVoice(cfg.ElevenLabs.Entry())
	if err != nil {
		return nil, fmt.Errorf("create voice provider %q: %w", "elevenlabs", err)
	}
	ps.Voice = resilience.NewVoiceFallback(speech, "elevenlabs", resilience.FallbackConfig{})
	slog.Info("provider created", "kind", "voice", "name", "elevenlabs", "model", cfg.ElevenLabs.ModelID)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Presence startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", providerLine(string(cfg.LLM.Provider), cfg.LLM.Model))
	for _, fb := range cfg.LLM.Fallbacks {
		printEntry("LLM fallback", providerLine(string(fb.Provider), fb.Model))
	}
	printEntry("Voice", providerLine("elevenlabs", cfg.ElevenLabs.ModelID))
	if n := len(cfg.Interview.Questions); n > 0 {
		printEntry("Questions", fmt.Sprintf("%d (custom)", n))
	} else {
		printEntry("Questions", "built-in script")
	}
	printEntry("Profiles", cfg.Storage.ProfilesDir)
	printEntry("Documents", cfg.Storage.DocumentsDir)
	addr := cfg.Server.ListenAddr
	if cfg.Server.TLS != nil {
		addr += " (tls)"
	}
	printEntry("Listen addr", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLine(name, model string) string {
	if name == "" {
		return ""
	}
	if model == "" {
		return name
	}
	return name + " / " + model
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format string, level *slog.LevelVar) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
