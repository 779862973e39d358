// Package server exposes Mallard's HTTP API: streaming chat proxies, voice
// transcription and synthesis, video analysis forwarding, and chat-history
// CRUD backed by the chat store.
//
// All routes return errors as JSON objects with a top-level "error" field;
// upstream provider failures map to 502 Bad Gateway so callers can tell a
// broken request (4xx) from a broken backend.
package server

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mallard-ai/mallard/internal/chatstore"
	"github.com/mallard-ai/mallard/internal/health"
	"github.com/mallard-ai/mallard/internal/observe"
	"github.com/mallard-ai/mallard/pkg/provider/llm"
	"github.com/mallard-ai/mallard/pkg/provider/stt"
	"github.com/mallard-ai/mallard/pkg/provider/tts"
	"github.com/mallard-ai/mallard/pkg/provider/vision"
)

// maxUploadBytes caps multipart uploads (audio clips, video frames).
const maxUploadBytes = 64 << 20

// Server holds the wired dependencies for all HTTP routes. Unset dependencies
// disable their routes: requests to them return 503 with a JSON error.
type Server struct {
	llms    map[string]llm.Provider
	stt     stt.Provider
	tts     tts.Provider
	yayaSTT stt.Provider
	yayaTTS tts.Provider
	vision  *vision.Client
	store   chatstore.Store
	metrics *observe.Metrics
	health  *health.Handler

	correctorMu sync.RWMutex
	corrector   func(string) string
}

// Option is a functional option for New.
type Option func(*Server)

// WithLLM registers an LLM provider under a route name ("google", "openai",
// "ollama"). The provider serves POST /api/chat/{name}.
func WithLLM(name string, p llm.Provider) Option {
	return func(s *Server) { s.llms[name] = p }
}

// WithSTT sets the provider behind /api/voice/speech-to-text.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) { s.stt = p }
}

// WithTTS sets the provider behind /api/voice/text-to-speech.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.tts = p }
}

// WithYayaSTT sets the provider behind /api/voice/yaya/speech-to-text.
func WithYayaSTT(p stt.Provider) Option {
	return func(s *Server) { s.yayaSTT = p }
}

// WithYayaTTS sets the provider behind /api/voice/yaya/text-to-speech.
func WithYayaTTS(p tts.Provider) Option {
	return func(s *Server) { s.yayaTTS = p }
}

// WithCorrector installs a transcript post-processor applied to every
// speech-to-text result. A nil corrector leaves transcripts untouched.
func WithCorrector(fn func(string) string) Option {
	return func(s *Server) { s.corrector = fn }
}

// WithVision sets the video-analysis service client.
func WithVision(c *vision.Client) Option {
	return func(s *Server) { s.vision = c }
}

// WithStore sets the chat store behind /api/chats.
func WithStore(st chatstore.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithMetrics sets the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// New creates a Server with the given dependencies.
func New(opts ...Option) *Server {
	s := &Server{
		llms: make(map[string]llm.Provider),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// SetCorrector replaces the transcript post-processor at runtime. Used by the
// config watcher when the vocabulary changes; safe to call while requests are
// in flight.
func (s *Server) SetCorrector(fn func(string) string) {
	s.correctorMu.Lock()
	s.corrector = fn
	s.correctorMu.Unlock()
}

func (s *Server) transcriptCorrector() func(string) string {
	s.correctorMu.RLock()
	defer s.correctorMu.RUnlock()
	return s.corrector
}

// Handler returns the full route tree wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat proxies.
	mux.HandleFunc("POST /api/chat/{provider}", s.handleChat)

	// Voice.
	mux.HandleFunc("POST /api/voice/speech-to-text", s.speechToText(func() stt.Provider { return s.stt }))
	mux.HandleFunc("POST /api/voice/text-to-speech", s.textToSpeech(func() tts.Provider { return s.tts }))
	mux.HandleFunc("GET /api/voice/voices", s.handleListVoices)
	mux.HandleFunc("POST /api/voice/yaya/speech-to-text", s.speechToText(func() stt.Provider { return s.yayaSTT }))
	mux.HandleFunc("POST /api/voice/yaya/text-to-speech", s.textToSpeech(func() tts.Provider { return s.yayaTTS }))

	// Video analysis.
	mux.HandleFunc("POST /api/video/analyze", s.handleVideoAnalyze)
	mux.HandleFunc("POST /api/video/session", s.handleVideoSessionCreate)
	mux.HandleFunc("DELETE /api/video/session", s.handleVideoSessionClose)

	// Chat store.
	mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("GET /api/chats/search", s.handleSearchMessages)
	mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	mux.HandleFunc("PATCH /api/chats/{id}", s.handleRenameChat)
	mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	mux.HandleFunc("POST /api/chats/{id}/messages", s.handleAddMessage)
	mux.HandleFunc("GET /api/chats/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/chats/{id}/files", s.handleAddFile)
	mux.HandleFunc("GET /api/chats/{id}/files", s.handleListFiles)

	// Operations.
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}
