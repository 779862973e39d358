package config_test

import (
	"strings"
	"testing"

	"github.com/mallard-ai/mallard/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: openai
    api_key: sk-test
  tts:
    name: yaya
    base_url: http://localhost:5001
  embeddings:
    name: openai
    api_key: sk-test
realtime:
  url: ws://localhost:5003/ws/video
  frame_interval_ms: 500
  jpeg_quality: 70
vision:
  url: http://localhost:5002
store:
  postgres_dsn: postgres://mallard@localhost:5432/mallard
transcript:
  vocabulary:
    - Eldrinax
    - Tower of Whispers
  phonetic_threshold: 0.7
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("llm entry = %+v", cfg.Providers.LLM)
	}
	if cfg.Realtime.URL != "ws://localhost:5003/ws/video" {
		t.Errorf("realtime url = %q", cfg.Realtime.URL)
	}
	if len(cfg.Transcript.Vocabulary) != 2 {
		t.Errorf("vocabulary = %v", cfg.Transcript.Vocabulary)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: ':8080'\n"))
	if err == nil {
		t.Error("misspelled field should be rejected by strict decoding")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "verbose"
	if err := config.Validate(cfg); err == nil {
		t.Error("invalid log level should fail validation")
	}
}

func TestValidate_BadRealtimeScheme(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Realtime.URL = "http://localhost:5003/ws/video"
	if err := config.Validate(cfg); err == nil {
		t.Error("http realtime URL should fail validation")
	}
}

func TestValidate_StoreRequiresEmbeddings(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Store.PostgresDSN = "postgres://localhost/mallard"
	if err := config.Validate(cfg); err == nil {
		t.Error("postgres store without embeddings provider should fail validation")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Realtime.JPEGQuality = 150
	cfg.Transcript.PhoneticThreshold = 1.5
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "jpeg_quality", "phonetic_threshold"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidate_EmptyVocabularyEntry(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Transcript.Vocabulary = []string{"Eldrinax", "  "}
	if err := config.Validate(cfg); err == nil {
		t.Error("blank vocabulary entry should fail validation")
	}
}
