// Package file provides a capture source backed by local files: the video
// track replays still images and the audio track replays a raw PCM16 clip.
// Headless clients use it to drive a realtime session without camera or
// microphone hardware.
package file

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/mallard-ai/mallard/pkg/audio"
	"github.com/mallard-ai/mallard/pkg/media"
)

// Compile-time interface checks.
var (
	_ media.CaptureSource = (*Source)(nil)
	_ media.VideoTrack    = (*videoTrack)(nil)
	_ media.AudioTrack    = (*audioTrack)(nil)
)

const (
	defaultSampleRate = 16000
	defaultChunk      = 50 * time.Millisecond
)

// Source replays media from local files. The video track cycles through the
// frame images forever; the audio track plays the clip once and then closes
// its sample channel.
type Source struct {
	framePaths []string
	audioPath  string
	sampleRate int
	channels   int
	chunk      time.Duration
}

// Option is a functional option for Source.
type Option func(*Source)

// WithAudioClip sets the raw little-endian PCM16 clip backing the audio
// track. channels must be 1 or 2; stereo input is downmixed to mono.
func WithAudioClip(path string, sampleRate, channels int) Option {
	return func(s *Source) {
		s.audioPath = path
		s.sampleRate = sampleRate
		s.channels = channels
	}
}

// WithChunkDuration sets the pacing of audio delivery. Default 50ms, matching
// a typical microphone buffer.
func WithChunkDuration(d time.Duration) Option {
	return func(s *Source) { s.chunk = d }
}

// NewSource creates a source replaying the given image files as the video
// track. At least one frame is required.
func NewSource(framePaths []string, opts ...Option) (*Source, error) {
	if len(framePaths) == 0 {
		return nil, fmt.Errorf("file: at least one frame image is required")
	}
	s := &Source{
		framePaths: framePaths,
		sampleRate: defaultSampleRate,
		channels:   1,
		chunk:      defaultChunk,
	}
	for _, o := range opts {
		o(s)
	}
	if s.channels != 1 && s.channels != 2 {
		return nil, fmt.Errorf("file: unsupported channel count %d", s.channels)
	}
	if s.sampleRate <= 0 {
		return nil, fmt.Errorf("file: sample rate must be positive, got %d", s.sampleRate)
	}
	return s, nil
}

// Capture implements [media.CaptureSource]. Missing or undecodable files map
// to [media.KindDeviceNotFound]. The audio track is only attached when the
// constraints request audio and a clip is configured.
func (s *Source) Capture(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, media.NewCaptureError(media.KindInternal, err)
	}

	frames := make([]image.Image, 0, len(s.framePaths))
	for _, path := range s.framePaths {
		img, err := decodeImage(path)
		if err != nil {
			return nil, media.NewCaptureError(media.KindDeviceNotFound, err)
		}
		frames = append(frames, img)
	}
	stream := &media.Stream{Video: &videoTrack{frames: frames}}

	if s.audioPath != "" && c.Audio {
		pcm, err := os.ReadFile(s.audioPath)
		if err != nil {
			return nil, media.NewCaptureError(media.KindDeviceNotFound, err)
		}
		if s.channels == 2 {
			pcm = audio.StereoToMono(pcm)
		}
		stream.Audio = newAudioTrack(pcm16ToFloat32(pcm), s.sampleRate, s.chunk)
	}
	return stream, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// videoTrack cycles through a fixed frame list.
type videoTrack struct {
	mu      sync.Mutex
	frames  []image.Image
	next    int
	stopped bool
}

// Grab implements [media.VideoTrack]. Returns the next frame immediately; the
// sampler's ticker provides the pacing.
func (t *videoTrack) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil, fmt.Errorf("file: video track stopped")
	}
	frame := t.frames[t.next]
	t.next = (t.next + 1) % len(t.frames)
	return frame, nil
}

// Stop implements [media.VideoTrack].
func (t *videoTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped implements [media.VideoTrack].
func (t *videoTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// audioTrack feeds the clip's samples onto a channel in real time. The feeder
// goroutine owns the channel and closes it when the clip ends or the track
// stops.
type audioTrack struct {
	ch   chan []float32
	rate int

	done     chan struct{}
	stopOnce sync.Once
}

func newAudioTrack(samples []float32, rate int, chunk time.Duration) *audioTrack {
	t := &audioTrack{
		ch:   make(chan []float32, 4),
		rate: rate,
		done: make(chan struct{}),
	}
	go t.feed(samples, chunk)
	return t
}

func (t *audioTrack) feed(samples []float32, chunk time.Duration) {
	defer close(t.ch)

	perChunk := int(float64(t.rate) * chunk.Seconds())
	if perChunk < 1 {
		perChunk = 1
	}
	ticker := time.NewTicker(chunk)
	defer ticker.Stop()

	for off := 0; off < len(samples); off += perChunk {
		end := off + perChunk
		if end > len(samples) {
			end = len(samples)
		}
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		select {
		case <-t.done:
			return
		case t.ch <- samples[off:end]:
		}
	}
}

// Samples implements [media.AudioTrack].
func (t *audioTrack) Samples() <-chan []float32 { return t.ch }

// SampleRate implements [media.AudioTrack].
func (t *audioTrack) SampleRate() int { return t.rate }

// Stop implements [media.AudioTrack].
func (t *audioTrack) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// Stopped implements [media.AudioTrack].
func (t *audioTrack) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// pcm16ToFloat32 converts little-endian int16 PCM to mono float32 in [-1, 1].
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}
