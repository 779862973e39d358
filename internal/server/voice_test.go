package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mallard-ai/mallard/internal/server"
	"github.com/mallard-ai/mallard/internal/transcript"
	sttmock "github.com/mallard-ai/mallard/pkg/provider/stt/mock"
	"github.com/mallard-ai/mallard/pkg/provider/tts"
	ttsmock "github.com/mallard-ai/mallard/pkg/provider/tts/mock"
)

// audioForm builds a multipart body with one "audio" file field.
func audioForm(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSpeechToText_ReturnsTranscript(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{TranscribeResult: "hello there"}
	srv := httptest.NewServer(server.New(server.WithSTT(provider)).Handler())
	defer srv.Close()

	body, contentType := audioForm(t, "clip.webm", []byte("fake-audio"))
	resp, err := http.Post(srv.URL+"/api/voice/speech-to-text", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Text != "hello there" {
		t.Errorf("text = %q", out.Text)
	}

	if len(provider.Requests) != 1 {
		t.Fatalf("requests = %d; want 1", len(provider.Requests))
	}
	req := provider.Requests[0]
	if req.Filename != "clip.webm" {
		t.Errorf("filename = %q", req.Filename)
	}
	if string(req.Audio) != "fake-audio" {
		t.Errorf("audio = %q", req.Audio)
	}
}

func TestSpeechToText_MissingAudioField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(server.New(server.WithSTT(&sttmock.Provider{})).Handler())
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("language", "en")
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/api/voice/speech-to-text", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", resp.StatusCode)
	}
}

func TestSpeechToText_NoProviderConfigured(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(server.New().Handler())
	defer srv.Close()

	body, contentType := audioForm(t, "clip.webm", []byte("x"))
	resp, err := http.Post(srv.URL+"/api/voice/speech-to-text", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", resp.StatusCode)
	}
}

func TestSpeechToText_UpstreamFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{TranscribeError: errors.New("whisper down")}
	srv := httptest.NewServer(server.New(server.WithSTT(provider)).Handler())
	defer srv.Close()

	body, contentType := audioForm(t, "clip.webm", []byte("x"))
	resp, err := http.Post(srv.URL+"/api/voice/speech-to-text", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d; want 502", resp.StatusCode)
	}
}

func TestSpeechToText_CorrectsVocabulary(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{TranscribeResult: "meet me at the eldrinacks gate"}
	srv := httptest.NewServer(server.New(
		server.WithSTT(provider),
		server.WithCorrector(transcript.NewPhonetic([]string{"Eldrinax"}, 0, 0).Func()),
	).Handler())
	defer srv.Close()

	body, contentType := audioForm(t, "clip.webm", []byte("x"))
	resp, err := http.Post(srv.URL+"/api/voice/speech-to-text", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Text != "meet me at the Eldrinax gate" {
		t.Errorf("text = %q; want the vocabulary spelling", out.Text)
	}
}

func TestSpeechToText_CorrectorHotSwap(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{TranscribeResult: "ask grimjar about it"}
	api := server.New(server.WithSTT(provider))
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	transcribe := func() string {
		t.Helper()
		body, contentType := audioForm(t, "clip.webm", []byte("x"))
		resp, err := http.Post(srv.URL+"/api/voice/speech-to-text", contentType, body)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		var out struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out.Text
	}

	if got := transcribe(); got != "ask grimjar about it" {
		t.Errorf("before swap: text = %q; want raw transcript", got)
	}

	api.SetCorrector(transcript.NewPhonetic([]string{"Grimjaw"}, 0, 0).Func())
	if got := transcribe(); got != "ask Grimjaw about it" {
		t.Errorf("after swap: text = %q; want corrected transcript", got)
	}
}

func TestSpeechToText_YayaRouteUsesYayaProvider(t *testing.T) {
	t.Parallel()

	defaultSTT := &sttmock.Provider{TranscribeResult: "default"}
	yayaSTT := &sttmock.Provider{TranscribeResult: "yaya"}
	srv := httptest.NewServer(server.New(
		server.WithSTT(defaultSTT),
		server.WithYayaSTT(yayaSTT),
	).Handler())
	defer srv.Close()

	body, contentType := audioForm(t, "clip.wav", []byte("x"))
	resp, err := http.Post(srv.URL+"/api/voice/yaya/speech-to-text", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Text != "yaya" {
		t.Errorf("text = %q; want the yaya provider's result", out.Text)
	}
	if len(defaultSTT.Requests) != 0 {
		t.Error("default provider was called for the yaya route")
	}
}

func TestTextToSpeech_ReturnsClip(t *testing.T) {
	t.Parallel()

	provider := &ttsmock.Provider{
		SynthesizeResult: &tts.Response{Audio: []byte("mp3-bytes"), MIMEType: "audio/mpeg"},
	}
	srv := httptest.NewServer(server.New(server.WithTTS(provider)).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/voice/text-to-speech", "application/json",
		strings.NewReader(`{"text":"hello","voice":"nova","speed":1.2}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "mp3-bytes" {
		t.Errorf("body = %q", body)
	}

	req := provider.Requests[0]
	if req.Voice != "nova" || req.Speed != 1.2 {
		t.Errorf("forwarded request = %+v", req)
	}
}

func TestTextToSpeech_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(server.New(server.WithTTS(&ttsmock.Provider{})).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/voice/text-to-speech", "application/json",
		strings.NewReader(`{"text":""}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", resp.StatusCode)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	provider := &ttsmock.Provider{
		Voices: []tts.VoiceProfile{
			{ID: "alloy", Name: "Alloy", Provider: "openai"},
			{ID: "nova", Name: "Nova", Provider: "openai"},
		},
	}
	srv := httptest.NewServer(server.New(server.WithTTS(provider)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/voice/voices")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Voices []struct {
			ID string `json:"id"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Voices) != 2 || out.Voices[0].ID != "alloy" {
		t.Errorf("voices = %+v", out.Voices)
	}
}
