// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (OpenAI Whisper, Google
// Speech, or a self-hosted voice service) behind a uniform single-shot
// interface: a complete audio clip in, the recognised text out. The voice
// routes record a clip in the browser and upload it whole, so there is no
// streaming session to manage.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request carries one audio clip for transcription.
type Request struct {
	// Audio is the complete encoded clip (webm, wav, mp3 — whatever the
	// recorder produced).
	Audio []byte

	// Filename is the original upload name. Providers that submit multipart
	// forms forward it; it also hints the container format.
	Filename string

	// MIMEType is the clip's content type (e.g. "audio/webm").
	MIMEType string

	// Language is the BCP-47 language hint (e.g. "zh", "en-US"). Empty lets
	// the provider auto-detect.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe submits the clip and returns the recognised text.
	Transcribe(ctx context.Context, req Request) (string, error)
}
