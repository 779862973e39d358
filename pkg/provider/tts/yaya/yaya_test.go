package yaya_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mallard-ai/mallard/pkg/provider/tts"
	"github.com/mallard-ai/mallard/pkg/provider/tts/yaya"
)

func TestSynthesize_PostsTextAndReturnsClip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/text-to-speech" {
			t.Errorf("path = %q; want /api/text-to-speech", r.URL.Path)
		}
		var req struct {
			Text  string  `json:"text"`
			Voice string  `json:"voice"`
			Rate  float64 `json:"rate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "hello" {
			t.Errorf("text = %q; want hello", req.Text)
		}
		if req.Voice != "mei" {
			t.Errorf("voice = %q; want mei", req.Voice)
		}
		if req.Rate != 1.5 {
			t.Errorf("rate = %v; want 1.5", req.Rate)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("wav-bytes"))
	}))
	t.Cleanup(srv.Close)

	p := yaya.New(srv.URL)
	got, err := p.Synthesize(context.Background(), tts.Request{
		Text:  "hello",
		Voice: "mei",
		Speed: 1.5,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got.Audio) != "wav-bytes" {
		t.Errorf("audio = %q; want wav-bytes", got.Audio)
	}
	if got.MIMEType != "audio/wav" {
		t.Errorf("mime = %q; want audio/wav", got.MIMEType)
	}
}

func TestSynthesize_ServiceErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"voice model missing"}`))
	}))
	t.Cleanup(srv.Close)

	p := yaya.New(srv.URL)
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "voice model missing") {
		t.Errorf("error = %v; want service error surfaced", err)
	}
}

func TestSynthesize_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	p := yaya.New("http://unused")
	if _, err := p.Synthesize(context.Background(), tts.Request{}); err == nil {
		t.Error("empty text should be rejected before any request")
	}
}

func TestListVoices_QueriesCatalogue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voices" {
			t.Errorf("path = %q; want /api/voices", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"voices":[{"id":"mei","name":"Mei"},{"id":"arno","name":"Arno"}]}`))
	}))
	t.Cleanup(srv.Close)

	p := yaya.New(srv.URL)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("len(voices) = %d; want 2", len(voices))
	}
	if voices[0].ID != "mei" || voices[0].Provider != "yaya" {
		t.Errorf("voices[0] = %+v; want mei/yaya", voices[0])
	}
}
