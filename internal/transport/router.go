// Package transport connects the turn controller to the audio client. A
// [Router] sits between the pipeline's playback output and whatever client is
// currently attached, so the pipeline never blocks on a missing or muted
// listener.
package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/hark/pkg/audio"
)

// Sink is an attached playback destination, typically one client connection.
type Sink interface {
	// Send delivers one playback frame to the client.
	Send(ctx context.Context, frame audio.Frame) error

	// Interrupt tells the client to discard any buffered playback
	// immediately.
	Interrupt() error
}

// Router fans pipeline playback out to the currently attached sink. It
// implements the controller's output port: playback with no client attached
// is consumed and dropped, never blocked, so the dialogue pipeline runs at
// its own pace regardless of the listener. It also carries the session's
// mute gate, which the capture path consults before forwarding microphone
// frames into wake/VAD processing.
type Router struct {
	mu    sync.RWMutex
	sink  Sink
	muted atomic.Bool

	// dropped counts frames consumed without delivery.
	dropped atomic.Int64
}

// NewRouter returns a Router with no sink attached.
func NewRouter() *Router {
	return &Router{}
}

// Attach makes s the active playback destination, replacing any previous
// sink.
func (r *Router) Attach(s Sink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

// Detach removes s if it is still the active sink. A sink that was already
// replaced is left alone.
func (r *Router) Detach(s Sink) {
	r.mu.Lock()
	if r.sink == s {
		r.sink = nil
	}
	r.mu.Unlock()
}

// SetMuted toggles the mute gate. While muted, captured microphone frames
// are dropped at the transport boundary before wake/VAD processing; the
// state machine itself is unaffected and playback continues.
func (r *Router) SetMuted(muted bool) {
	r.muted.Store(muted)
}

// Muted reports the mute gate state.
func (r *Router) Muted() bool {
	return r.muted.Load()
}

// Dropped returns how many playback frames were consumed without delivery.
func (r *Router) Dropped() int64 {
	return r.dropped.Load()
}

// Play delivers one frame to the attached sink. Detached playback is dropped
// without error.
func (r *Router) Play(ctx context.Context, frame audio.Frame) error {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink == nil {
		r.dropped.Add(1)
		return nil
	}
	return sink.Send(ctx, frame)
}

// StopPlayback interrupts the attached sink so buffered audio goes silent
// immediately.
func (r *Router) StopPlayback() {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink == nil {
		return
	}
	_ = sink.Interrupt()
}
