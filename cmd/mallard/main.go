// Command mallard is the main entry point for the Mallard AI chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/mallard-ai/mallard/internal/chatstore"
	"github.com/mallard-ai/mallard/internal/config"
	"github.com/mallard-ai/mallard/internal/health"
	"github.com/mallard-ai/mallard/internal/observe"
	"github.com/mallard-ai/mallard/internal/resilience"
	"github.com/mallard-ai/mallard/internal/server"
	"github.com/mallard-ai/mallard/internal/transcript"
	"github.com/mallard-ai/mallard/pkg/provider/embeddings"
	oaembed "github.com/mallard-ai/mallard/pkg/provider/embeddings/openai"
	"github.com/mallard-ai/mallard/pkg/provider/llm"
	"github.com/mallard-ai/mallard/pkg/provider/llm/anyllm"
	googlellm "github.com/mallard-ai/mallard/pkg/provider/llm/google"
	"github.com/mallard-ai/mallard/pkg/provider/stt"
	googlestt "github.com/mallard-ai/mallard/pkg/provider/stt/google"
	oaistt "github.com/mallard-ai/mallard/pkg/provider/stt/openai"
	yayastt "github.com/mallard-ai/mallard/pkg/provider/stt/yaya"
	"github.com/mallard-ai/mallard/pkg/provider/tts"
	googletts "github.com/mallard-ai/mallard/pkg/provider/tts/google"
	oaitts "github.com/mallard-ai/mallard/pkg/provider/tts/openai"
	yayatts "github.com/mallard-ai/mallard/pkg/provider/tts/yaya"
	"github.com/mallard-ai/mallard/pkg/provider/vision"
)

// shutdownTimeout bounds graceful HTTP shutdown after SIGINT/SIGTERM.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mallard: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mallard: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mallard starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "mallard"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Chat store ────────────────────────────────────────────────────────────
	store, storeCheck, err := buildStore(ctx, cfg, providers.embeddings)
	if err != nil {
		slog.Error("failed to open chat store", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := []server.Option{
		server.WithMetrics(metrics),
	}
	if corr := newCorrector(cfg.Transcript); corr != nil {
		opts = append(opts, server.WithCorrector(corr))
	}
	if providers.llm != nil {
		opts = append(opts, server.WithLLM(providers.llmName, providers.llm))
	}
	if providers.stt != nil {
		opts = append(opts, server.WithSTT(providers.stt))
	}
	if providers.tts != nil {
		opts = append(opts, server.WithTTS(providers.tts))
	}
	opts = append(opts,
		server.WithYayaSTT(providers.yayaSTT),
		server.WithYayaTTS(providers.yayaTTS),
	)
	if cfg.Vision.URL != "" {
		opts = append(opts, server.WithVision(vision.NewClient(cfg.Vision.URL)))
	}
	if store != nil {
		opts = append(opts, server.WithStore(store))
	}
	var checkers []health.Checker
	if storeCheck != nil {
		checkers = append(checkers, health.Checker{Name: "store", Check: storeCheck})
	}
	opts = append(opts, server.WithHealth(health.New(checkers...)))

	api := server.New(opts...)
	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.Handler(),
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VocabularyChanged {
			api.SetCorrector(newCorrector(new.Transcript))
			slog.Info("transcript vocabulary reloaded", "entries", len(d.NewVocabulary))
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providerSet holds the instantiated providers for the HTTP routes.
type providerSet struct {
	llm        llm.Provider
	llmName    string
	stt        stt.Provider
	tts        tts.Provider
	yayaSTT    stt.Provider
	yayaTTS    tts.Provider
	embeddings embeddings.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The unified providers share one pattern: optional APIKey + optional
	// BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// google is the native Gemini client used by the streaming chat route.
	reg.RegisterLLM("google", func(entry config.ProviderEntry) (llm.Provider, error) {
		return googlellm.New(ctx, entry.APIKey, entry.Model)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []googlestt.Option
		if entry.BaseURL != "" {
			opts = append(opts, googlestt.WithEndpoint(entry.BaseURL))
		}
		return googlestt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("yaya", func(entry config.ProviderEntry) (stt.Provider, error) {
		return yayastt.New(entry.BaseURL), nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []googletts.Option
		if entry.BaseURL != "" {
			opts = append(opts, googletts.WithEndpoint(entry.BaseURL))
		}
		return googletts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("yaya", func(entry config.ProviderEntry) (tts.Provider, error) {
		return yayatts.New(entry.BaseURL), nil
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
// The yaya voice providers are always available: their routes exist whether
// or not yaya is also the configured default, and they double as fallbacks
// for the default voice routes.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{
		yayaSTT: yayastt.New(optString(cfg.Providers.STT.Options, "yaya_base_url")),
		yayaTTS: yayatts.New(optString(cfg.Providers.TTS.Options, "yaya_base_url")),
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.llm = p
		ps.llmName = name
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.stt = p
		slog.Info("provider created", "kind", "stt", "name", name)

		// Failover to the yaya voice service when the primary STT is down.
		if name != "yaya" {
			fb := resilience.NewSTTFallback(p, name, resilience.FallbackConfig{})
			fb.AddFallback("yaya", ps.yayaSTT)
			ps.stt = fb
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.tts = p
		slog.Info("provider created", "kind", "tts", "name", name)

		if name != "yaya" {
			fb := resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
			fb.AddFallback("yaya", ps.yayaTTS)
			ps.tts = fb
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

// newCorrector builds the vocabulary corrector applied to speech-to-text
// results, or nil when no vocabulary is configured.
func newCorrector(tc config.TranscriptConfig) func(string) string {
	if len(tc.Vocabulary) == 0 {
		return nil
	}
	return transcript.NewPhonetic(tc.Vocabulary, tc.PhoneticThreshold, tc.FuzzyThreshold).Func()
}

// buildStore opens the chat store: Postgres when a DSN is configured, the
// in-memory store when only an embedder is available, none otherwise. The
// second return value is a readiness check for /readyz.
func buildStore(ctx context.Context, cfg *config.Config, embedder embeddings.Provider) (chatstore.Store, func(context.Context) error, error) {
	if embedder == nil {
		return nil, nil, nil
	}

	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pg, err := chatstore.NewPostgres(ctx, dsn, embedder)
		if err != nil {
			return nil, nil, err
		}
		check := func(ctx context.Context) error {
			_, err := pg.ListChats(ctx)
			return err
		}
		slog.Info("chat store opened", "backend", "postgres")
		return pg, check, nil
	}

	slog.Info("chat store opened", "backend", "memory")
	return chatstore.NewMem(embedder), nil, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Mallard — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("Vision", cfg.Vision.URL, "")
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Chat store      : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Chat store      : %-19s ║\n", "memory")
	}
	fmt.Printf("║  Vocabulary      : %-19d ║\n", len(cfg.Transcript.Vocabulary))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the default text logger. The returned LevelVar lets the
// config watcher adjust verbosity at runtime.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
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
