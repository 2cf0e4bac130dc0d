// Package turn implements the turn-taking and interruption state machine at
// the heart of the dialogue loop. The controller owns wake-word gating,
// voice-activity-bounded utterance capture, the STT → LM → TTS pipeline for
// each turn, barge-in cancellation during playback, and the commit of
// completed turns to conversation memory.
package turn

import "time"

// State is the controller's position in the turn-taking cycle.
type State int

const (
	// StateIdle waits for the wake word. Only wake scoring runs; unaddressed
	// speech never produces a turn.
	StateIdle State = iota

	// StateListening accumulates an utterance under VAD after the wake word
	// matched (or after barge-in).
	StateListening

	// StateTranscribing waits on the STT port.
	StateTranscribing

	// StateGenerating waits on the LM port.
	StateGenerating

	// StateSpeaking plays synthesized audio while watching for barge-in.
	StateSpeaking

	// StateCancelling tears down an in-flight turn after barge-in, explicit
	// stop, or a port failure. Always resolves to idle or listening.
	StateCancelling
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSpeaking:
		return "speaking"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Status is the lifecycle status of a single turn.
type Status int

const (
	// StatusPending means the utterance finalized and the pipeline started.
	StatusPending Status = iota

	// StatusSTTDone means the transcript arrived.
	StatusSTTDone

	// StatusResponded means the response text arrived.
	StatusResponded

	// StatusSpoken means playback finished. Only spoken turns are committed
	// to memory.
	StatusSpoken

	// StatusCancelled means barge-in or an explicit stop abandoned the turn.
	StatusCancelled

	// StatusFailed means a port call failed or timed out.
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSTTDone:
		return "stt_done"
	case StatusResponded:
		return "responded"
	case StatusSpoken:
		return "spoken"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the turn.
func (s Status) Terminal() bool {
	return s == StatusSpoken || s == StatusCancelled || s == StatusFailed
}

// Turn is one full interaction cycle from finalized utterance to spoken
// reply (or its cancellation).
type Turn struct {
	ID           uint64
	Transcript   string
	ResponseText string
	StartedAt    time.Time
	CompletedAt  time.Time
	Status       Status
}
