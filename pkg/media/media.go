// Package media defines the capture abstraction for camera, screen and
// microphone input. A [CaptureSource] hands out a [Stream] holding exactly one
// video track and one audio track; the realtime pipeline samples frames and
// audio from those tracks without knowing which platform produced them.
package media

import (
	"context"
	"image"
)

// SourceKind selects which video surface a capture request targets.
type SourceKind string

const (
	// SourceCamera captures from a camera device.
	SourceCamera SourceKind = "camera"
	// SourceScreen captures a screen or window share.
	SourceScreen SourceKind = "screen"
)

// Constraints describes the stream a caller wants. Zero values mean
// "platform default".
type Constraints struct {
	// Video selects the video surface. Defaults to SourceCamera.
	Video SourceKind

	// Width and Height are the ideal video dimensions in pixels.
	Width  int
	Height int

	// Audio requests an audio track alongside the video track.
	Audio bool

	// SampleRate is the ideal audio sample rate in Hz.
	SampleRate int

	// EchoCancellation and NoiseSuppression toggle platform audio processing.
	EchoCancellation bool
	NoiseSuppression bool
}

// CaptureSource acquires media streams from the underlying platform.
// Implementations must map platform failures to a [*CaptureError] so callers
// can distinguish permission denials from missing or busy devices.
type CaptureSource interface {
	// Capture acquires a stream satisfying the given constraints. The stream
	// stays live until [Stream.Stop] is called; ctx only bounds acquisition.
	Capture(ctx context.Context, c Constraints) (*Stream, error)
}

// VideoTrack is a live source of video frames.
type VideoTrack interface {
	// Grab returns the most recent frame. It blocks until a frame is
	// available or ctx is done.
	Grab(ctx context.Context) (image.Image, error)

	// Stop releases the track. Safe to call more than once.
	Stop()

	// Stopped reports whether Stop has been called.
	Stopped() bool
}

// AudioTrack is a live source of float32 PCM sample buffers.
type AudioTrack interface {
	// Samples returns the channel of captured sample buffers. The channel is
	// closed when the track stops. Samples are mono float32 in [-1, 1].
	Samples() <-chan []float32

	// SampleRate returns the capture rate in Hz.
	SampleRate() int

	// Stop releases the track. Safe to call more than once.
	Stop()

	// Stopped reports whether Stop has been called.
	Stopped() bool
}

// Stream bundles the tracks acquired by a single Capture call.
type Stream struct {
	// Video is the stream's video track. Never nil.
	Video VideoTrack

	// Audio is the stream's audio track. Nil when Constraints.Audio was false.
	Audio AudioTrack
}

// Stop stops every track in the stream. Safe to call more than once.
func (s *Stream) Stop() {
	if s.Video != nil {
		s.Video.Stop()
	}
	if s.Audio != nil {
		s.Audio.Stop()
	}
}
