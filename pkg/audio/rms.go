package audio

import "math"

// RMS computes the root-mean-square energy of 16-bit little-endian PCM,
// normalized to [0, 1]. Silence is near zero; full-scale speech approaches 1.
// A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// EncodeSamples packs int16 samples into little-endian PCM bytes.
func EncodeSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Float32Mono converts PCM bytes to normalized float32 mono samples, averaging
// channels when the source is interleaved stereo. Used by inference backends
// that expect float input.
func Float32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var acc int32
		for c := range channels {
			off := (i*channels + c) * 2
			acc += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		out[i] = float32(acc/int32(channels)) / 32768.0
	}
	return out
}
