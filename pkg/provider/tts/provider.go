// Package tts defines the text-to-speech contract. Synthesis is streaming:
// the provider returns audio frames as they are generated so playback can
// start before the full response is rendered, and the stream dies promptly
// when the context is cancelled by barge-in or an explicit stop.
package tts

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/audio"
)

// Voice selects the synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name, informational only.
	Name string
}

// Stream is a live synthesis stream. Frames closes when synthesis completes,
// fails, or the context is cancelled; call Err afterwards to distinguish a
// clean finish from a mid-stream failure.
type Stream struct {
	// Frames emits PCM audio in generation order.
	Frames <-chan audio.Frame

	// err is written at most once, before Frames closes; the channel close
	// orders it ahead of any Err call.
	once sync.Once
	err  error
}

// NewStream wraps a frame channel. The returned fail function records a
// terminal error; providers call it before closing the channel.
func NewStream(frames <-chan audio.Frame) (*Stream, func(error)) {
	s := &Stream{Frames: frames}
	return s, func(err error) {
		if err != nil {
			s.once.Do(func() { s.err = err })
		}
	}
}

// Err returns the terminal stream error, if any. Only meaningful after
// Frames has closed.
func (s *Stream) Err() error { return s.err }

// Provider synthesizes speech. Implementations must honor context
// cancellation: a cancelled context stops synthesis and closes the stream.
type Provider interface {
	// Synthesize renders text with the given voice.
	Synthesize(ctx context.Context, text string, voice Voice) (*Stream, error)

	// Name identifies the provider implementation (e.g. "elevenlabs").
	Name() string
}
