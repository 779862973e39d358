package realtime_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/mallard-ai/mallard/pkg/media/mock"
	"github.com/mallard-ai/mallard/pkg/realtime"
)

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), A: 255})
		}
	}
	return img
}

func TestFrameSampler_EmitsDecodableJPEG(t *testing.T) {
	t.Parallel()

	frames := make(chan []byte, 8)
	track := &mock.VideoTrack{Frame: testFrame()}
	s := realtime.NewFrameSampler(track, func(jpegData []byte) {
		data := make([]byte, len(jpegData))
		copy(data, jpegData)
		select {
		case frames <- data:
		default:
		}
	}, realtime.WithFrameInterval(10*time.Millisecond))

	s.Start()
	defer s.Stop()

	select {
	case data := <-frames:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("emitted frame is not valid JPEG: %v", err)
		}
		if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
			t.Errorf("decoded bounds = %v; want 8x8", img.Bounds())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestFrameSampler_SamplesOnInterval(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	count := 0
	track := &mock.VideoTrack{Frame: testFrame()}
	s := realtime.NewFrameSampler(track, func([]byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}, realtime.WithFrameInterval(20*time.Millisecond))

	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	mu.Lock()
	got := count
	mu.Unlock()
	if got < 2 {
		t.Errorf("sampled %d frames in 150ms at 20ms interval; want at least 2", got)
	}
}

func TestFrameSampler_GrabFailureSkipsTick(t *testing.T) {
	t.Parallel()

	frames := make(chan []byte, 8)
	track := &mock.VideoTrack{
		GrabFunc: func(call int) (image.Image, error) {
			if call == 0 {
				return nil, errors.New("camera hiccup")
			}
			return testFrame(), nil
		},
	}
	s := realtime.NewFrameSampler(track, func(jpegData []byte) {
		select {
		case frames <- jpegData:
		default:
		}
	}, realtime.WithFrameInterval(10*time.Millisecond))

	s.Start()
	defer s.Stop()

	// The failed first grab must not kill the loop.
	select {
	case <-frames:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout: sampler did not recover from grab failure")
	}
}

func TestFrameSampler_StopIsSynchronous(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	stopped := false
	track := &mock.VideoTrack{Frame: testFrame()}

	var s *realtime.FrameSampler
	s = realtime.NewFrameSampler(track, func([]byte) {
		mu.Lock()
		if stopped {
			t.Error("emit called after Stop returned")
		}
		mu.Unlock()
	}, realtime.WithFrameInterval(5*time.Millisecond))

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	mu.Lock()
	stopped = true
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
}

func TestFrameSampler_StopIdempotent(t *testing.T) {
	t.Parallel()

	track := &mock.VideoTrack{Frame: testFrame()}
	s := realtime.NewFrameSampler(track, func([]byte) {}, realtime.WithFrameInterval(5*time.Millisecond))
	s.Start()
	s.Stop()
	s.Stop() // must not panic or deadlock
}
