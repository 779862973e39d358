// Package yaya provides an STT provider backed by a self-hosted YAYA voice
// service. The service exposes a small HTTP API; transcription is a multipart
// upload to /api/speech-to-text returning {"text": "..."}.
package yaya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mallard-ai/mallard/pkg/provider/stt"
)

// DefaultBaseURL is where a locally run YAYA service listens.
const DefaultBaseURL = "http://localhost:5001"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider against a YAYA voice service.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New constructs a YAYA STT Provider. An empty baseURL selects
// DefaultBaseURL.
func New(baseURL string, opts ...Option) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", fmt.Errorf("yaya stt: audio must not be empty")
	}

	filename := req.Filename
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("yaya stt: build form: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("yaya stt: write form: %w", err)
	}
	if req.Language != "" {
		if err := mw.WriteField("language", req.Language); err != nil {
			return "", fmt.Errorf("yaya stt: write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("yaya stt: close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("yaya stt: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("yaya stt: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("yaya stt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("yaya stt: service returned status %d", resp.StatusCode)
	}

	var out struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("yaya stt: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("yaya stt: %s", out.Error)
	}
	return out.Text, nil
}
