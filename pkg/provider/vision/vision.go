// Package vision provides a client for the video-analysis service.
//
// The service accepts one-shot analysis jobs (a video clip plus optional
// audio and a question, answered with a text analysis) and long-lived
// analysis sessions that are created and closed over REST.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// DefaultBaseURL is where a locally run video-analysis service listens.
const DefaultBaseURL = "http://localhost:5002"

// AnalyzeRequest carries one analysis job.
type AnalyzeRequest struct {
	// Video is the encoded clip or frame. Must be non-empty.
	Video []byte

	// VideoName is the upload filename. Empty means "clip.webm".
	VideoName string

	// Audio is an optional audio clip recorded alongside the video.
	Audio []byte

	// AudioName is the audio upload filename. Empty means "audio.webm".
	AudioName string

	// Question is what to ask about the clip. Empty lets the service pick
	// its default prompt.
	Question string
}

// AnalyzeResult is the service's answer.
type AnalyzeResult struct {
	// Analysis is the model's text answer to the question.
	Analysis string `json:"analysis"`

	// Transcript is any speech transcribed from the audio, when present.
	Transcript string `json:"transcript"`
}

// Session identifies a created analysis session.
type Session struct {
	ID     string `json:"session_id"`
	Status string `json:"status"`
}

// Client talks to a video-analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient constructs a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Analyze uploads the clip and returns the service's analysis.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if len(req.Video) == 0 {
		return nil, fmt.Errorf("vision: video must not be empty")
	}

	videoName := req.VideoName
	if videoName == "" {
		videoName = "clip.webm"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("video", videoName)
	if err != nil {
		return nil, fmt.Errorf("vision: build form: %w", err)
	}
	if _, err := part.Write(req.Video); err != nil {
		return nil, fmt.Errorf("vision: write form: %w", err)
	}
	if len(req.Audio) > 0 {
		audioName := req.AudioName
		if audioName == "" {
			audioName = "audio.webm"
		}
		apart, err := mw.CreateFormFile("audio", audioName)
		if err != nil {
			return nil, fmt.Errorf("vision: build form: %w", err)
		}
		if _, err := apart.Write(req.Audio); err != nil {
			return nil, fmt.Errorf("vision: write form: %w", err)
		}
	}
	if req.Question != "" {
		if err := mw.WriteField("question", req.Question); err != nil {
			return nil, fmt.Errorf("vision: write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("vision: close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze-video", &body)
	if err != nil {
		return nil, fmt.Errorf("vision: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out AnalyzeResult
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession opens a long-lived analysis session. Instructions seed the
// session's system prompt; empty uses the service default.
func (c *Client) CreateSession(ctx context.Context, instructions string) (*Session, error) {
	payload, err := json.Marshal(map[string]string{"instructions": instructions})
	if err != nil {
		return nil, fmt.Errorf("vision: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session/create", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out Session
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("vision: service returned no session id")
	}
	return &out, nil
}

// CloseSession closes a session previously returned by CreateSession.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("vision: sessionID must not be empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session/"+sessionID+"/close", nil)
	if err != nil {
		return fmt.Errorf("vision: build request: %w", err)
	}
	return c.do(httpReq, nil)
}

// do runs the request and decodes the JSON body into out when non-nil.
// Non-2xx statuses become errors carrying the service's error message.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vision: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vision: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("vision: %s", e.Error)
		}
		return fmt.Errorf("vision: service returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("vision: decode response: %w", err)
	}
	return nil
}
