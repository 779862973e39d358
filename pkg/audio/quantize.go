// Package audio provides the PCM conversion helpers used by the realtime
// streaming pipeline: float32 capture buffers in, 16 kHz little-endian int16
// bytes out.
package audio

// QuantizePCM16 converts float32 samples in [-1, 1] to little-endian int16
// PCM. Samples outside the range are clamped. Negative samples scale by 32768
// and non-negative by 32767, so -1.0 maps to -32768 and 1.0 to 32767 exactly.
func QuantizePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
