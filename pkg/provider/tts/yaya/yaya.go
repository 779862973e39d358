// Package yaya provides a TTS provider backed by a self-hosted YAYA voice
// service. Synthesis is a JSON POST to /api/text-to-speech returning the
// encoded clip directly in the response body.
package yaya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mallard-ai/mallard/pkg/provider/tts"
)

// DefaultBaseURL is where a locally run YAYA service listens.
const DefaultBaseURL = "http://localhost:5001"

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider against a YAYA voice service.
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

// New constructs a YAYA TTS Provider. An empty baseURL selects
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

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Response, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("yaya tts: text must not be empty")
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:  req.Text,
		Voice: req.Voice,
		Rate:  req.Speed,
		Pitch: req.Pitch,
	})
	if err != nil {
		return nil, fmt.Errorf("yaya tts: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/text-to-speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("yaya tts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yaya tts: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yaya tts: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var out struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &out) == nil && out.Error != "" {
			return nil, fmt.Errorf("yaya tts: %s", out.Error)
		}
		return nil, fmt.Errorf("yaya tts: service returned status %d", resp.StatusCode)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return &tts.Response{Audio: data, MIMEType: mimeType}, nil
}

// ListVoices implements tts.Provider by querying the service's voice
// catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("yaya tts: build request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yaya tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yaya tts: service returned status %d", resp.StatusCode)
	}

	var out struct {
		Voices []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("yaya tts: decode response: %w", err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(out.Voices))
	for _, v := range out.Voices {
		profiles = append(profiles, tts.VoiceProfile{ID: v.ID, Name: v.Name, Provider: "yaya"})
	}
	return profiles, nil
}
