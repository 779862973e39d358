package server

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/mallard-ai/mallard/pkg/provider/vision"
)

// handleVideoAnalyze forwards a one-shot analysis job to the video-analysis
// service: a video clip, optional audio, and an optional question.
func (s *Server) handleVideoAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.vision == nil {
		writeError(w, http.StatusServiceUnavailable, "no video-analysis service configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	video, videoName, err := formFileBytes(r, "video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "video file is required")
		return
	}

	req := vision.AnalyzeRequest{
		Video:     video,
		VideoName: videoName,
		Question:  r.FormValue("question"),
	}
	// Audio is optional.
	if audio, audioName, err := formFileBytes(r, "audio"); err == nil {
		req.Audio = audio
		req.AudioName = audioName
	}

	result, err := s.vision.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "analysis failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// videoSessionRequest is the JSON body for POST /api/video/session.
type videoSessionRequest struct {
	Instructions string `json:"instructions,omitempty"`
}

// handleVideoSessionCreate opens a long-lived analysis session.
func (s *Server) handleVideoSessionCreate(w http.ResponseWriter, r *http.Request) {
	if s.vision == nil {
		writeError(w, http.StatusServiceUnavailable, "no video-analysis service configured")
		return
	}

	var body videoSessionRequest
	if err := decodeJSON(r, &body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := s.vision.CreateSession(r.Context(), body.Instructions)
	if err != nil {
		writeError(w, http.StatusBadGateway, "session create failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleVideoSessionClose closes the session named by the sessionId query
// parameter.
func (s *Server) handleVideoSessionClose(w http.ResponseWriter, r *http.Request) {
	if s.vision == nil {
		writeError(w, http.StatusServiceUnavailable, "no video-analysis service configured")
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}

	if err := s.vision.CloseSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusBadGateway, "session close failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// formFileBytes reads one uploaded file fully and returns its content and
// original filename.
func formFileBytes(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}
