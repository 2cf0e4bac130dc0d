// Package vad defines the voice activity detection contract used to gate the
// dialogue loop. A VAD engine decides, frame by frame, whether the user is
// speaking; the turn controller builds utterance boundaries and barge-in
// detection on top of its events.
package vad

import (
	"context"

	"github.com/MrWong99/hark/pkg/audio"
)

// EventType enumerates detection states for a single frame.
type EventType int

const (
	// Silence indicates no speech detected.
	Silence EventType = iota

	// SpeechStart indicates speech has just begun.
	SpeechStart

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd
)

// String returns the lowercase name of the event type.
func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Event is the detection result for one audio frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech likelihood for this frame (0.0–1.0). Energy
	// detectors report normalized RMS; model-based detectors report a score.
	Probability float64
}

// SessionConfig carries per-session detection parameters. Zero values fall
// back to engine defaults.
type SessionConfig struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// Channels of incoming frames.
	Channels int

	// SpeechThreshold is the probability above which a frame counts as speech.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts as
	// silence. Keeping it under SpeechThreshold gives hysteresis so a
	// borderline frame does not flap the detector.
	SilenceThreshold float64
}

// SessionHandle is a live detection session. ProcessFrame must be called from
// a single goroutine; the detector carries per-session state.
type SessionHandle interface {
	// ProcessFrame scores one frame and returns the resulting event.
	ProcessFrame(frame audio.Frame) (Event, error)

	// Reset returns the session to the silence state, discarding any
	// in-progress speech tracking.
	Reset()

	// Close releases session resources.
	Close() error
}

// Engine creates detection sessions. Implementations must be safe for
// concurrent session creation.
type Engine interface {
	// NewSession opens a detection session with the given parameters.
	NewSession(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Name identifies the engine implementation (e.g. "energy").
	Name() string
}
