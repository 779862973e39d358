// Package mock provides in-memory mock implementations of [media.CaptureSource],
// [media.VideoTrack] and [media.AudioTrack] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	track := mock.NewAudioTrack(16000, 8)
//	stream := &media.Stream{
//	    Video: &mock.VideoTrack{Frame: image.NewRGBA(image.Rect(0, 0, 4, 4))},
//	    Audio: track,
//	}
//	src := &mock.Source{CaptureResult: stream}
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/mallard-ai/mallard/pkg/media"
)

// Compile-time interface checks.
var (
	_ media.CaptureSource = (*Source)(nil)
	_ media.VideoTrack    = (*VideoTrack)(nil)
	_ media.AudioTrack    = (*AudioTrack)(nil)
)

// Source is a mock implementation of [media.CaptureSource].
// Set the exported Result fields before use; inspect CaptureCalls after.
type Source struct {
	mu sync.Mutex

	// CaptureResult is the stream returned by Capture.
	CaptureResult *media.Stream

	// CaptureError is the error returned by Capture. When set, CaptureResult
	// is ignored.
	CaptureError error

	// CaptureCalls records the constraints of every Capture invocation.
	CaptureCalls []media.Constraints
}

// Capture implements [media.CaptureSource].
func (s *Source) Capture(_ context.Context, c media.Constraints) (*media.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CaptureCalls = append(s.CaptureCalls, c)
	if s.CaptureError != nil {
		return nil, s.CaptureError
	}
	return s.CaptureResult, nil
}

// VideoTrack is a mock implementation of [media.VideoTrack].
type VideoTrack struct {
	mu sync.Mutex

	// Frame is returned by every Grab call unless GrabFunc is set.
	Frame image.Image

	// GrabError is returned by Grab. When set, Frame is ignored.
	GrabError error

	// GrabFunc, when non-nil, overrides Frame/GrabError entirely. It receives
	// the zero-based call index.
	GrabFunc func(call int) (image.Image, error)

	// CallCountGrab records how many times Grab was called.
	CallCountGrab int

	stopped bool
}

// Grab implements [media.VideoTrack].
func (t *VideoTrack) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	call := t.CallCountGrab
	t.CallCountGrab++
	fn := t.GrabFunc
	frame, err := t.Frame, t.GrabError
	t.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Stop implements [media.VideoTrack].
func (t *VideoTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped implements [media.VideoTrack].
func (t *VideoTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// AudioTrack is a mock implementation of [media.AudioTrack]. Push sample
// buffers into it with [AudioTrack.Push]; Stop closes the sample channel.
type AudioTrack struct {
	mu      sync.Mutex
	ch      chan []float32
	rate    int
	stopped bool
}

// NewAudioTrack creates a mock audio track with the given sample rate and
// channel buffer size.
func NewAudioTrack(rate, buffer int) *AudioTrack {
	return &AudioTrack{ch: make(chan []float32, buffer), rate: rate}
}

// Push delivers a sample buffer to consumers. Returns false if the track has
// been stopped.
func (t *AudioTrack) Push(samples []float32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.ch <- samples
	return true
}

// Samples implements [media.AudioTrack].
func (t *AudioTrack) Samples() <-chan []float32 { return t.ch }

// SampleRate implements [media.AudioTrack].
func (t *AudioTrack) SampleRate() int { return t.rate }

// Stop implements [media.AudioTrack]. Closes the sample channel on first call.
func (t *AudioTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.ch)
}

// Stopped implements [media.AudioTrack].
func (t *AudioTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
