package realtime

import (
	"sync"

	"github.com/mallard-ai/mallard/pkg/audio"
	"github.com/mallard-ai/mallard/pkg/media"
)

// Audio encoding constants fixed by the inference service: 16 kHz mono PCM16
// delivered in 4096-sample chunks.
const (
	TargetSampleRate = 16000
	ChunkSamples     = 4096
	chunkBytes       = ChunkSamples * 2
)

// AudioChunkEncoder drains a capture track, quantizes float32 buffers to
// PCM16, resamples to 16 kHz mono and emits fixed-size chunks in capture
// order. Leftover samples below a full chunk stay buffered until more audio
// arrives; they are discarded on Stop.
type AudioChunkEncoder struct {
	track media.AudioTrack
	emit  func(pcm []byte)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAudioChunkEncoder creates an encoder draining track. emit receives each
// 8192-byte chunk and must not retain the slice past the call.
func NewAudioChunkEncoder(track media.AudioTrack, emit func(pcm []byte)) *AudioChunkEncoder {
	return &AudioChunkEncoder{
		track: track,
		emit:  emit,
		done:  make(chan struct{}),
	}
}

// Start launches the encoding loop.
func (e *AudioChunkEncoder) Start() {
	e.wg.Add(1)
	go e.run()
}

// Stop halts encoding. It blocks until the loop has exited, so emit is never
// called after Stop returns. Idempotent.
func (e *AudioChunkEncoder) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}

func (e *AudioChunkEncoder) run() {
	defer e.wg.Done()

	srcRate := e.track.SampleRate()
	var pending []byte

	for {
		select {
		case <-e.done:
			return
		case samples, ok := <-e.track.Samples():
			if !ok {
				return
			}
			pcm := audio.QuantizePCM16(samples)
			pcm = audio.ResampleMono16(pcm, srcRate, TargetSampleRate)
			pending = append(pending, pcm...)

			for len(pending) >= chunkBytes {
				chunk := pending[:chunkBytes]
				e.emit(chunk)
				pending = pending[chunkBytes:]
			}
		}
	}
}
