// Package google provides an STT provider backed by the Google Cloud
// Speech-to-Text REST API (v1 speech:recognize, API-key auth).
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mallard-ai/mallard/pkg/provider/stt"
)

const defaultEndpoint = "https://speech.googleapis.com/v1/speech:recognize"

// DefaultLanguage is used when the request carries no language hint.
const DefaultLanguage = "en-US"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the Google Speech REST API.
type Provider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithEndpoint overrides the recognize endpoint. Primarily used in tests to
// point at a local mock server.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New constructs a Google STT Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google stt: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  recognizeAudio  `json:"audio"`
}

type recognizeConfig struct {
	Encoding              string `json:"encoding,omitempty"`
	LanguageCode          string `json:"languageCode"`
	EnableAutomaticPunct  bool   `json:"enableAutomaticPunctuation"`
}

type recognizeAudio struct {
	Content string `json:"content"` // base64
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", fmt.Errorf("google stt: audio must not be empty")
	}

	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}

	body := recognizeRequest{
		Config: recognizeConfig{
			Encoding:             encodingFor(req.MIMEType),
			LanguageCode:         language,
			EnableAutomaticPunct: true,
		},
		Audio: recognizeAudio{Content: base64.StdEncoding.EncodeToString(req.Audio)},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("google stt: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"?key="+p.apiKey, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("google stt: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("google stt: recognize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("google stt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google stt: recognize returned status %d: %s", resp.StatusCode, truncate(data, 256))
	}

	var rec recognizeResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("google stt: decode response: %w", err)
	}
	if rec.Error != nil {
		return "", fmt.Errorf("google stt: %s", rec.Error.Message)
	}

	var sb strings.Builder
	for _, r := range rec.Results {
		if len(r.Alternatives) > 0 {
			sb.WriteString(r.Alternatives[0].Transcript)
		}
	}
	return sb.String(), nil
}

// encodingFor maps an upload MIME type to a Speech API encoding. Unknown
// types are omitted so the API sniffs the container header.
func encodingFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"), strings.Contains(mimeType, "ogg"):
		return "WEBM_OPUS"
	case strings.Contains(mimeType, "wav"):
		return "LINEAR16"
	case strings.Contains(mimeType, "flac"):
		return "FLAC"
	default:
		return ""
	}
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
