// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (OpenAI, Google Cloud TTS,
// or a self-hosted voice service) behind a uniform single-shot interface: text
// in, one encoded audio clip out. The voice routes play the returned clip
// whole, so there is no synthesis stream to manage.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes a selectable synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string
}

// Request carries one synthesis job.
type Request struct {
	// Text is the content to speak. Must be non-empty.
	Text string

	// Voice is the provider-specific voice ID. Empty means provider default.
	Voice string

	// Speed adjusts the speaking rate (1.0 = default). Zero means default.
	Speed float64

	// Pitch adjusts the voice pitch (0 = default, provider-specific scale).
	Pitch float64
}

// Response holds the synthesised clip.
type Response struct {
	// Audio is the complete encoded clip.
	Audio []byte

	// MIMEType is the clip's content type (e.g. "audio/mpeg").
	MIMEType string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text as speech and returns the encoded clip.
	Synthesize(ctx context.Context, req Request) (*Response, error)

	// ListVoices returns the voices this provider offers.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
