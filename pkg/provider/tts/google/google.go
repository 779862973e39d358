// Package google provides a TTS provider backed by the Google Cloud
// Text-to-Speech REST API (text:synthesize with API key auth).
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mallard-ai/mallard/pkg/provider/tts"
)

// DefaultEndpoint is the Cloud Text-to-Speech REST endpoint.
const DefaultEndpoint = "https://texttospeech.googleapis.com/v1"

// DefaultVoice is used when a request does not name a voice.
const DefaultVoice = "en-US-Neural2-C"

// defaultVoices is the curated subset exposed through ListVoices. The full
// catalogue is several hundred entries; these cover the languages the app
// ships with.
var defaultVoices = []tts.VoiceProfile{
	{ID: "en-US-Neural2-C", Name: "English (US) female", Provider: "google"},
	{ID: "en-US-Neural2-D", Name: "English (US) male", Provider: "google"},
	{ID: "de-DE-Neural2-F", Name: "German female", Provider: "google"},
	{ID: "cmn-CN-Wavenet-A", Name: "Mandarin female", Provider: "google"},
}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider against the Cloud TTS REST API.
type Provider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New constructs a Google Cloud TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google tts: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
		Pitch         float64 `json:"pitch,omitempty"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
	Error        struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize implements tts.Provider. The returned clip is MP3 encoded.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Response, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("google tts: text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	var body synthesizeRequest
	body.Input.Text = req.Text
	body.Voice.Name = voice
	body.Voice.LanguageCode = languageOf(voice)
	body.AudioConfig.AudioEncoding = "MP3"
	body.AudioConfig.SpeakingRate = req.Speed
	body.AudioConfig.Pitch = req.Pitch

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("google tts: encode request: %w", err)
	}

	endpoint := p.endpoint + "/text:synthesize?key=" + url.QueryEscape(p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("google tts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google tts: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google tts: read response: %w", err)
	}

	var out synthesizeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("google tts: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error.Message != "" {
			return nil, fmt.Errorf("google tts: %s", out.Error.Message)
		}
		return nil, fmt.Errorf("google tts: API returned status %d", resp.StatusCode)
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google tts: decode audio: %w", err)
	}
	return &tts.Response{Audio: audio, MIMEType: "audio/mpeg"}, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, len(defaultVoices))
	copy(out, defaultVoices)
	return out, nil
}

// languageOf derives a BCP-47 language code from a Cloud TTS voice name,
// which is always prefixed with one ("en-US-Neural2-C" -> "en-US").
func languageOf(voice string) string {
	dashes := 0
	for i, r := range voice {
		if r == '-' {
			dashes++
			if dashes == 2 {
				return voice[:i]
			}
		}
	}
	return "en-US"
}
