package file_test

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mallard-ai/mallard/pkg/media"
	"github.com/mallard-ai/mallard/pkg/media/file"
)

// writeJPEG encodes a blank frame of the given size into dir and returns its
// path. Distinct sizes let tests tell frames apart after decoding.
func writeJPEG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

// pcm16Bytes packs int16 samples little-endian.
func pcm16Bytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// writeClip writes a raw PCM16 clip and returns its path.
func writeClip(t *testing.T, dir string, samples ...int16) string {
	t.Helper()
	path := filepath.Join(dir, "clip.pcm")
	if err := os.WriteFile(path, pcm16Bytes(samples...), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

// drain collects every sample delivered before the track's channel closes.
func drain(t *testing.T, track media.AudioTrack) []float32 {
	t.Helper()
	var all []float32
	timeout := time.After(5 * time.Second)
	for {
		select {
		case buf, ok := <-track.Samples():
			if !ok {
				return all
			}
			all = append(all, buf...)
		case <-timeout:
			t.Fatal("audio track did not close in time")
		}
	}
}

func TestSource_VideoCyclesFrames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeJPEG(t, dir, "a.jpg", 2, 2)
	b := writeJPEG(t, dir, "b.jpg", 4, 4)

	src, err := file.NewSource([]string{a, b})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	stream, err := src.Capture(context.Background(), media.Constraints{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer stream.Stop()

	wantWidths := []int{2, 4, 2}
	for i, want := range wantWidths {
		frame, err := stream.Video.Grab(context.Background())
		if err != nil {
			t.Fatalf("Grab %d: %v", i, err)
		}
		if got := frame.Bounds().Dx(); got != want {
			t.Errorf("frame %d width = %d; want %d", i, got, want)
		}
	}
}

func TestSource_AudioMonoClip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	frame := writeJPEG(t, dir, "f.jpg", 2, 2)
	clip := writeClip(t, dir, 16384, -16384, 0)

	src, err := file.NewSource([]string{frame},
		file.WithAudioClip(clip, 16000, 1),
		file.WithChunkDuration(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	stream, err := src.Capture(context.Background(), media.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer stream.Stop()

	if stream.Audio == nil {
		t.Fatal("stream has no audio track")
	}
	if got := stream.Audio.SampleRate(); got != 16000 {
		t.Errorf("SampleRate = %d; want 16000", got)
	}

	samples := drain(t, stream.Audio)
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d; want 3", len(samples))
	}
	if samples[0] != 0.5 || samples[1] != -0.5 || samples[2] != 0 {
		t.Errorf("samples = %v; want [0.5 -0.5 0]", samples)
	}
}

func TestSource_AudioStereoDownmix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	frame := writeJPEG(t, dir, "f.jpg", 2, 2)
	// Two stereo frames: (1000, 3000) and (-2000, -4000).
	clip := writeClip(t, dir, 1000, 3000, -2000, -4000)

	src, err := file.NewSource([]string{frame},
		file.WithAudioClip(clip, 16000, 2),
		file.WithChunkDuration(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	stream, err := src.Capture(context.Background(), media.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer stream.Stop()

	samples := drain(t, stream.Audio)
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d; want 2 downmixed samples", len(samples))
	}
	if want := float32(2000) / 32768; samples[0] != want {
		t.Errorf("samples[0] = %v; want L+R average %v", samples[0], want)
	}
	if want := float32(-3000) / 32768; samples[1] != want {
		t.Errorf("samples[1] = %v; want L+R average %v", samples[1], want)
	}
}

func TestSource_AudioOnlyWhenRequested(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	frame := writeJPEG(t, dir, "f.jpg", 2, 2)
	clip := writeClip(t, dir, 100)

	src, err := file.NewSource([]string{frame}, file.WithAudioClip(clip, 16000, 1))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	stream, err := src.Capture(context.Background(), media.Constraints{Audio: false})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer stream.Stop()

	if stream.Audio != nil {
		t.Error("audio track attached although constraints did not request audio")
	}
}

func TestSource_MissingFrameIsCaptureError(t *testing.T) {
	t.Parallel()

	src, err := file.NewSource([]string{filepath.Join(t.TempDir(), "nope.jpg")})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	_, err = src.Capture(context.Background(), media.Constraints{})
	var capErr *media.CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("Capture error = %v; want *media.CaptureError", err)
	}
	if capErr.Kind != media.KindDeviceNotFound {
		t.Errorf("kind = %q; want %q", capErr.Kind, media.KindDeviceNotFound)
	}
}

func TestNewSource_RequiresFrames(t *testing.T) {
	t.Parallel()

	if _, err := file.NewSource(nil); err == nil {
		t.Error("NewSource(nil) succeeded; want error")
	}
}

func TestNewSource_RejectsBadChannelCount(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	frame := writeJPEG(t, dir, "f.jpg", 2, 2)
	if _, err := file.NewSource([]string{frame}, file.WithAudioClip("clip.pcm", 16000, 3)); err == nil {
		t.Error("channel count 3 accepted; want error")
	}
}

func TestAudioTrack_StopClosesChannel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	frame := writeJPEG(t, dir, "f.jpg", 2, 2)
	// A long clip delivered slowly, so Stop lands mid-playback.
	samples := make([]int16, 16000)
	clip := writeClip(t, dir, samples...)

	src, err := file.NewSource([]string{frame},
		file.WithAudioClip(clip, 16000, 1),
		file.WithChunkDuration(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	stream, err := src.Capture(context.Background(), media.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	stream.Audio.Stop()
	if !stream.Audio.Stopped() {
		t.Error("Stopped() = false after Stop")
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream.Audio.Samples():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel did not close after Stop")
		}
	}
}
