// Package stt defines the speech-to-text contract. The turn controller hands
// a complete utterance segment to the provider and receives one transcript
// back; segmentation happens upstream in the dialogue loop, so providers are
// one-shot rather than streaming.
package stt

import (
	"context"
	"time"
)

// Segment is a complete utterance ready for transcription.
type Segment struct {
	// PCM holds little-endian signed 16-bit samples of the full utterance.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels of the PCM data.
	Channels int

	// Language is an optional BCP-47 hint (e.g. "en"). Empty uses the
	// provider default.
	Language string
}

// Transcript is the transcription result for one segment.
type Transcript struct {
	// Text is the transcribed speech, whitespace-trimmed. May be empty when
	// the segment contained no intelligible speech.
	Text string

	// Confidence is the overall score (0.0–1.0). Zero when the provider does
	// not report confidence.
	Confidence float64

	// AudioDuration is the length of the transcribed segment.
	AudioDuration time.Duration
}

// Provider transcribes utterance segments. Implementations must honor
// context cancellation and deadlines; an expired context is a failure, never
// a partial result.
type Provider interface {
	// Transcribe converts one segment to text.
	Transcribe(ctx context.Context, seg Segment) (Transcript, error)

	// Name identifies the provider implementation (e.g. "whisper-server").
	Name() string
}
