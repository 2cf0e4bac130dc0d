// Package mock provides a scriptable test double for vad.Engine.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// Engine is a mock vad.Engine whose sessions replay a scripted event
// sequence, one event per processed frame.
type Engine struct {
	mu sync.Mutex

	// Script is the sequence of events to emit. Once exhausted, sessions
	// emit Silence forever.
	Script []vad.Event

	// NewSessionErr, when non-nil, is returned from NewSession.
	NewSessionErr error

	// Sessions records every session created.
	Sessions []*Session
}

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Name implements vad.Engine.
func (e *Engine) Name() string { return "mock" }

// NewSession implements vad.Engine. All sessions share the engine script but
// keep independent positions.
func (e *Engine) NewSession(_ context.Context, cfg vad.SessionConfig) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{script: e.Script, Config: cfg}
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// Session is a mock vad.SessionHandle.
type Session struct {
	mu     sync.Mutex
	script []vad.Event
	pos    int

	// Config is the session configuration passed to NewSession.
	Config vad.SessionConfig

	// Frames records every processed frame.
	Frames []audio.Frame

	// ResetCalls counts Reset invocations.
	ResetCalls int

	// Closed reports whether Close was called.
	Closed bool
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(frame audio.Frame) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, frame)
	if s.pos >= len(s.script) {
		return vad.Event{Type: vad.Silence}, nil
	}
	ev := s.script[s.pos]
	s.pos++
	return ev, nil
}

// Reset implements vad.SessionHandle. It rewinds the script.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
	s.pos = 0
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
