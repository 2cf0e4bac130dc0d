// Package energy implements vad.Engine with RMS energy thresholds and
// hysteresis. It needs no model files and runs in microseconds per frame,
// which makes it the default detector for the dialogue loop.
package energy

import (
	"context"
	"fmt"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// Default thresholds, tuned for normalized RMS of 16-bit speech at a typical
// microphone gain. Speech onset needs a clearly hot frame; release uses a
// lower bar so trailing low-energy phonemes stay inside the utterance.
const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
)

// Engine creates energy-based detection sessions.
type Engine struct {
	speechThreshold  float64
	silenceThreshold float64
}

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the default speech/silence RMS thresholds.
func WithThresholds(speech, silence float64) Option {
	return func(e *Engine) {
		e.speechThreshold = speech
		e.silenceThreshold = silence
	}
}

// New creates an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		speechThreshold:  DefaultSpeechThreshold,
		silenceThreshold: DefaultSilenceThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name implements vad.Engine.
func (e *Engine) Name() string { return "energy" }

// NewSession implements vad.Engine.
func (e *Engine) NewSession(ctx context.Context, cfg vad.SessionConfig) (vad.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("energy: context already cancelled: %w", err)
	}

	speech := cfg.SpeechThreshold
	if speech <= 0 {
		speech = e.speechThreshold
	}
	silence := cfg.SilenceThreshold
	if silence <= 0 {
		silence = e.silenceThreshold
	}
	if silence > speech {
		return nil, fmt.Errorf("energy: silence threshold %v must not exceed speech threshold %v", silence, speech)
	}

	return &session{speechThreshold: speech, silenceThreshold: silence}, nil
}

// session tracks the in-speech flag across frames. Not safe for concurrent
// use, matching the SessionHandle contract.
type session struct {
	speechThreshold  float64
	silenceThreshold float64
	inSpeech         bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame implements vad.SessionHandle. The hysteresis band between the
// two thresholds keeps the detector in its current state.
func (s *session) ProcessFrame(frame audio.Frame) (vad.Event, error) {
	rms := audio.RMS(frame.PCM)
	ev := vad.Event{Probability: rms}

	switch {
	case !s.inSpeech && rms >= s.speechThreshold:
		s.inSpeech = true
		ev.Type = vad.SpeechStart
	case s.inSpeech && rms > s.silenceThreshold:
		ev.Type = vad.SpeechContinue
	case s.inSpeech:
		s.inSpeech = false
		ev.Type = vad.SpeechEnd
	default:
		ev.Type = vad.Silence
	}
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() { s.inSpeech = false }

// Close implements vad.SessionHandle.
func (s *session) Close() error { return nil }
