// Command mallard-stream is a headless realtime streaming client. It replays
// local media files into the realtime analysis service and prints transcripts
// and model responses to the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mallard-ai/mallard/internal/config"
	"github.com/mallard-ai/mallard/internal/observe"
	"github.com/mallard-ai/mallard/internal/transcript"
	"github.com/mallard-ai/mallard/pkg/media/file"
	"github.com/mallard-ai/mallard/pkg/realtime"
)

// connectTimeout bounds the wait for the service to accept the session.
const connectTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	framesGlob := flag.String("frames", "", "glob of still images replayed as the video track")
	audioPath := flag.String("audio", "", "raw little-endian PCM16 clip replayed as the audio track")
	audioRate := flag.Int("rate", 16000, "sample rate of -audio in Hz")
	audioChannels := flag.Int("channels", 1, "channel count of -audio (1 or 2)")
	outPath := flag.String("out", "", "file receiving the model's PCM16 audio responses")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mallard-stream: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mallard-stream: %v\n", err)
		}
		return 1
	}

	logger, _ := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if *framesGlob == "" {
		fmt.Fprintln(os.Stderr, "mallard-stream: -frames is required (glob of jpg/png files)")
		return 1
	}
	frames, err := filepath.Glob(*framesGlob)
	if err != nil || len(frames) == 0 {
		fmt.Fprintf(os.Stderr, "mallard-stream: no frames match %q\n", *framesGlob)
		return 1
	}

	var srcOpts []file.Option
	if *audioPath != "" {
		srcOpts = append(srcOpts, file.WithAudioClip(*audioPath, *audioRate, *audioChannels))
	}
	source, err := file.NewSource(frames, srcOpts...)
	if err != nil {
		slog.Error("failed to build media source", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "mallard-stream"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	var out *os.File
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			slog.Error("failed to create output file", "err", err)
			return 1
		}
		defer out.Close()
	}

	// ── Session ───────────────────────────────────────────────────────────────
	states := make(chan realtime.State, 8)
	cb := realtime.Callbacks{
		OnStateChange: func(s realtime.State) {
			slog.Info("session state", "state", s.String())
			select {
			case states <- s:
			default:
			}
		},
		OnTranscript: func(text string) {
			fmt.Printf("you:   %s\n", text)
		},
		OnResponseDone: func(text string) {
			fmt.Printf("model: %s\n", text)
		},
		OnAudio: func(pcm []byte) {
			if out != nil {
				_, _ = out.Write(pcm)
			}
		},
		OnSpeechStarted: func() {
			slog.Debug("speech detected")
		},
		OnError: func(err error) {
			slog.Error("session error", "err", err)
		},
	}

	opts := []realtime.ControllerOption{realtime.WithStats(metrics)}
	if cfg.Realtime.URL != "" {
		opts = append(opts, realtime.WithServiceURL(cfg.Realtime.URL))
	}
	if cfg.Realtime.FrameIntervalMS > 0 {
		opts = append(opts, realtime.WithSamplerInterval(time.Duration(cfg.Realtime.FrameIntervalMS)*time.Millisecond))
	}
	if cfg.Realtime.JPEGQuality > 0 {
		opts = append(opts, realtime.WithSamplerQuality(cfg.Realtime.JPEGQuality))
	}
	if vocab := cfg.Transcript.Vocabulary; len(vocab) > 0 {
		corr := transcript.NewPhonetic(vocab, cfg.Transcript.PhoneticThreshold, cfg.Transcript.FuzzyThreshold)
		opts = append(opts, realtime.WithTranscriptCorrector(corr.Func()))
	}

	ctrl := realtime.NewController(source, cb, opts...)
	metrics.SessionStarted(ctx)
	defer metrics.SessionEnded(context.Background())

	if err := ctrl.Connect(ctx); err != nil {
		slog.Error("connect failed", "err", err)
		return 1
	}
	defer ctrl.Disconnect()

	if !awaitConnected(ctx, states) {
		return 1
	}
	if err := ctrl.StartStreaming(ctx); err != nil {
		slog.Error("start streaming failed", "err", err)
		return 1
	}
	slog.Info("streaming — press Ctrl+C to stop", "frames", len(frames), "session", ctrl.SessionID())

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping…")
			return 0
		case s := <-states:
			if s == realtime.StateDisconnected {
				slog.Info("session closed by service")
				return 0
			}
		}
	}
}

// awaitConnected blocks until the session reaches Connected. A disconnect or
// timeout before that is a failed connection attempt.
func awaitConnected(ctx context.Context, states <-chan realtime.State) bool {
	deadline := time.After(connectTimeout)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			slog.Error("timed out waiting for the service to accept the session")
			return false
		case s := <-states:
			switch s {
			case realtime.StateConnected:
				return true
			case realtime.StateDisconnected:
				slog.Error("connection closed before the session was ready")
				return false
			}
		}
	}
}

// newLogger builds the default text logger for the client.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	switch level {
	case config.LogDebug:
		lvl.Set(slog.LevelDebug)
	case config.LogWarn:
		lvl.Set(slog.LevelWarn)
	case config.LogError:
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}
