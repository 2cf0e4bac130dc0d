// Package memory provides bounded conversation memory for the dialogue loop.
//
// The unit of storage is an [Exchange]: one completed user/assistant turn.
// The default [Ring] store keeps the most recent N exchanges in a FIFO window;
// an optional [Journal] mirrors every committed exchange to an append-only
// JSONL file so history survives restarts.
package memory

import "time"

// Exchange is a single completed turn: what the user said and what the
// assistant answered. Only turns that reached spoken playback are committed.
type Exchange struct {
	// UserText is the final transcript of the user's utterance.
	UserText string `json:"user_text"`

	// AssistantText is the full generated response.
	AssistantText string `json:"assistant_text"`

	// Timestamp is when the exchange was committed.
	Timestamp time.Time `json:"timestamp"`
}

// Store is the conversation memory contract used by the turn controller.
// Implementations must guarantee snapshot isolation: a slice returned by
// Snapshot never changes when the store is mutated afterwards.
type Store interface {
	// Append commits an exchange. When the store is at capacity the oldest
	// exchange is evicted first.
	Append(ex Exchange) error

	// Snapshot returns the stored exchanges in insertion order, oldest first.
	// The returned slice is an isolated copy.
	Snapshot() []Exchange

	// Clear removes all exchanges.
	Clear() error

	// Len reports the number of stored exchanges.
	Len() int
}
