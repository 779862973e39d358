package server

import (
	"log/slog"
	"net/http"

	"github.com/mallard-ai/mallard/pkg/provider/llm"
)

// chatRequest is the JSON body for POST /api/chat/{provider}.
type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleChat streams a completion as a text/plain chunk stream. The response
// body is the raw concatenation of text deltas; clients render it as it
// arrives. Errors after the stream opens terminate the body early.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	provider, ok := s.llms[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat provider: "+name)
		return
	}

	var body chatRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	req := llm.CompletionRequest{
		SystemPrompt: body.System,
		Temperature:  body.Temperature,
		MaxTokens:    body.MaxTokens,
	}
	for _, m := range body.Messages {
		req.Messages = append(req.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	ch, err := provider.StreamCompletion(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "completion failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for chunk := range ch {
		if chunk.FinishReason == "error" {
			slog.Warn("server: chat stream error", "provider", name, "error", chunk.Text)
			return
		}
		if chunk.Text == "" {
			continue
		}
		if _, err := w.Write([]byte(chunk.Text)); err != nil {
			// Client went away; drain the channel via context cancellation.
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
