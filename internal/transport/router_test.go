package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/hark/pkg/audio"
)

type fakeSink struct {
	mu         sync.Mutex
	frames     []audio.Frame
	interrupts int
	sendErr    error
}

func (f *fakeSink) Send(_ context.Context, frame audio.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) Interrupt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	return nil
}

func testFrame() audio.Frame {
	return audio.Frame{PCM: make([]byte, 640), SampleRate: 16000, Channels: 1}
}

func TestRouterDeliversToAttachedSink(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	sink := &fakeSink{}
	r.Attach(sink)

	if err := r.Play(context.Background(), testFrame()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("sink received %d frames, want 1", len(sink.frames))
	}
}

func TestRouterDropsWithoutSink(t *testing.T) {
	t.Parallel()
	r := NewRouter()

	if err := r.Play(context.Background(), testFrame()); err != nil {
		t.Fatalf("detached Play must not error: %v", err)
	}
	if r.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", r.Dropped())
	}
}

func TestRouterMuteGate(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	sink := &fakeSink{}
	r.Attach(sink)

	r.SetMuted(true)
	if !r.Muted() {
		t.Fatal("Muted() = false after SetMuted(true)")
	}

	// Mute gates capture, not playback: the pipeline's output still flows.
	if err := r.Play(context.Background(), testFrame()); err != nil {
		t.Fatalf("Play while muted: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatal("playback must not be gated by mute")
	}

	r.SetMuted(false)
	if r.Muted() {
		t.Fatal("Muted() = true after SetMuted(false)")
	}
}

func TestRouterDetachOnlyRemovesCurrentSink(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	old := &fakeSink{}
	replacement := &fakeSink{}

	r.Attach(old)
	r.Attach(replacement)
	r.Detach(old) // stale detach, must not remove the replacement

	if err := r.Play(context.Background(), testFrame()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(replacement.frames) != 1 {
		t.Fatal("replacement sink did not receive the frame")
	}

	r.Detach(replacement)
	if err := r.Play(context.Background(), testFrame()); err != nil {
		t.Fatalf("Play after detach: %v", err)
	}
	if len(replacement.frames) != 1 {
		t.Fatal("detached sink still received frames")
	}
}

func TestRouterStopPlaybackInterruptsSink(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	sink := &fakeSink{}

	r.StopPlayback() // no sink, must not panic
	r.Attach(sink)
	r.StopPlayback()
	if sink.interrupts != 1 {
		t.Fatalf("interrupts = %d, want 1", sink.interrupts)
	}
}

func TestRouterPropagatesSendError(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	sink := &fakeSink{sendErr: errors.New("socket closed")}
	r.Attach(sink)

	if err := r.Play(context.Background(), testFrame()); err == nil {
		t.Fatal("expected send error to propagate")
	}
}
