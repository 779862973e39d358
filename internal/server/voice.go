package server

import (
	"io"
	"net/http"

	"github.com/mallard-ai/mallard/pkg/provider/stt"
	"github.com/mallard-ai/mallard/pkg/provider/tts"
)

// speechToText builds the handler for a transcription route. The provider is
// resolved per request so the same handler body serves the default and the
// yaya variants.
func (s *Server) speechToText(pick func() stt.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := pick()
		if provider == nil {
			writeError(w, http.StatusServiceUnavailable, "no speech-to-text provider configured")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeError(w, http.StatusBadRequest, "audio file is required")
			return
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read audio: "+err.Error())
			return
		}

		text, err := provider.Transcribe(r.Context(), stt.Request{
			Audio:    audio,
			Filename: header.Filename,
			MIMEType: header.Header.Get("Content-Type"),
			Language: r.FormValue("language"),
		})
		if err != nil {
			writeError(w, http.StatusBadGateway, "transcription failed: "+err.Error())
			return
		}
		if fix := s.transcriptCorrector(); fix != nil {
			text = fix(text)
		}

		writeJSON(w, http.StatusOK, map[string]string{"text": text})
	}
}

// ttsRequest is the JSON body for the text-to-speech routes.
type ttsRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// textToSpeech builds the handler for a synthesis route. The response body is
// the encoded clip with the provider's MIME type.
func (s *Server) textToSpeech(pick func() tts.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := pick()
		if provider == nil {
			writeError(w, http.StatusServiceUnavailable, "no text-to-speech provider configured")
			return
		}

		var body ttsRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if body.Text == "" {
			writeError(w, http.StatusBadRequest, "text must not be empty")
			return
		}

		resp, err := provider.Synthesize(r.Context(), tts.Request{
			Text:  body.Text,
			Voice: body.Voice,
			Speed: body.Speed,
			Pitch: body.Pitch,
		})
		if err != nil {
			writeError(w, http.StatusBadGateway, "synthesis failed: "+err.Error())
			return
		}

		w.Header().Set("Content-Type", resp.MIMEType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Audio)
	}
}

// handleListVoices returns the voices of the default TTS provider.
func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusServiceUnavailable, "no text-to-speech provider configured")
		return
	}
	voices, err := s.tts.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "list voices failed: "+err.Error())
		return
	}
	type voice struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Provider string `json:"provider"`
	}
	out := make([]voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, voice{ID: v.ID, Name: v.Name, Provider: v.Provider})
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": out})
}
