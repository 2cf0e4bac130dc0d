// Package audio defines the frame type and PCM helpers shared by the capture
// transport, the voice-activity and wake-word detectors, and the providers.
package audio

import "time"

// Frame is a single chunk of audio flowing through the pipeline. Frames are
// the atomic unit of transport — received from the client connection, scored
// by VAD and wake-word detection, buffered by the utterance segmenter, and
// played back through the output stream.
type Frame struct {
	// PCM holds little-endian signed 16-bit samples.
	PCM []byte

	// SampleRate in Hz (e.g. 16000 for STT input, 48000 for browser capture).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame, derived from the PCM
// byte count. Returns zero for frames with an unset format.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples decodes the PCM bytes into int16 values. Interleaving is preserved
// for stereo frames. A trailing odd byte is ignored.
func (f Frame) Samples() []int16 {
	n := len(f.PCM) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(f.PCM[i*2]) | int16(f.PCM[i*2+1])<<8
	}
	return out
}
