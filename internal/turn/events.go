package turn

import "time"

// EventType identifies a lifecycle event emitted by the controller.
type EventType string

const (
	// EventWake fires when the wake word is detected.
	EventWake EventType = "wake"

	// EventStarted fires when an utterance finalizes and a turn begins.
	EventStarted EventType = "started"

	// EventTranscribed carries the transcript text.
	EventTranscribed EventType = "transcribed"

	// EventResponding fires when generation begins.
	EventResponding EventType = "responding"

	// EventSpeaking carries the response text as playback begins.
	EventSpeaking EventType = "speaking"

	// EventCompleted fires when a turn reaches spoken and is committed.
	EventCompleted EventType = "completed"

	// EventCancelled fires when barge-in or an explicit stop abandons a turn.
	EventCancelled EventType = "cancelled"

	// EventError fires when a port call fails or times out.
	EventError EventType = "error"
)

// Event is one lifecycle notification. Events drive the front-end feed and
// carry the text payload relevant to their type: the transcript for
// transcribed, the response for speaking/completed, the failure message for
// error.
type Event struct {
	Type   EventType `json:"type"`
	TurnID uint64    `json:"turn_id,omitempty"`
	Text   string    `json:"text,omitempty"`
	Err    string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink receives lifecycle events. Sinks are invoked from the controller's
// goroutine and must not block.
type Sink func(Event)
