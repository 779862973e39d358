package realtime

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/mallard-ai/mallard/pkg/media"
)

// Frame sampling defaults. The inference service expects roughly two frames
// per second; heavier sampling buys no accuracy and floods the uplink.
const (
	DefaultFrameInterval = 500 * time.Millisecond
	DefaultJPEGQuality   = 70
)

// FrameSampler grabs frames from a video track on a fixed interval, encodes
// them as JPEG and hands the bytes to an emit function. A grab or encode
// failure skips that tick; the sampler keeps running.
type FrameSampler struct {
	track    media.VideoTrack
	emit     func(jpegData []byte)
	interval time.Duration
	quality  int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// SamplerOption is a functional option for FrameSampler.
type SamplerOption func(*FrameSampler)

// WithFrameInterval overrides the sampling interval. Used in tests to speed
// the ticker up.
func WithFrameInterval(d time.Duration) SamplerOption {
	return func(s *FrameSampler) { s.interval = d }
}

// WithJPEGQuality overrides the JPEG encoder quality (1-100).
func WithJPEGQuality(q int) SamplerOption {
	return func(s *FrameSampler) { s.quality = q }
}

// NewFrameSampler creates a sampler for track. emit receives each encoded
// frame and must not retain the slice past the call.
func NewFrameSampler(track media.VideoTrack, emit func(jpegData []byte), opts ...SamplerOption) *FrameSampler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &FrameSampler{
		track:    track,
		emit:     emit,
		interval: DefaultFrameInterval,
		quality:  DefaultJPEGQuality,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the sampling loop.
func (s *FrameSampler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts sampling. It blocks until the loop has exited, so emit is never
// called after Stop returns. Idempotent.
func (s *FrameSampler) Stop() {
	s.stopOnce.Do(s.cancel)
	s.wg.Wait()
}

func (s *FrameSampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *FrameSampler) sampleOnce() {
	frame, err := s.track.Grab(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		slog.Warn("realtime: frame grab failed, skipping tick", "error", err)
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: s.quality}); err != nil {
		slog.Warn("realtime: jpeg encode failed, skipping tick", "error", err)
		return
	}
	s.emit(buf.Bytes())
}
