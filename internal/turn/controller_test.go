package turn_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hark/internal/turn"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/memory"
	"github.com/MrWong99/hark/pkg/provider/llm"
	llmmock "github.com/MrWong99/hark/pkg/provider/llm/mock"
	"github.com/MrWong99/hark/pkg/provider/stt"
	sttmock "github.com/MrWong99/hark/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/hark/pkg/provider/tts/mock"
	"github.com/MrWong99/hark/pkg/provider/vad/energy"
	"github.com/MrWong99/hark/pkg/provider/wake/phonetic"
)

// playbackSink records played frames and StopPlayback calls.
type playbackSink struct {
	mu     sync.Mutex
	frames []audio.Frame
	stops  int
}

func (p *playbackSink) Play(ctx context.Context, frame audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	return nil
}

func (p *playbackSink) StopPlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *playbackSink) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// eventLog captures lifecycle events for later assertions.
type eventLog struct {
	mu     sync.Mutex
	events []turn.Event
}

func (l *eventLog) sink(ev turn.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []turn.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]turn.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) count(typ turn.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// harness wires a controller with mock ports and an energy VAD over real
// PCM frames, so utterance boundaries come from actual frame content.
type harness struct {
	ctrl   *turn.Controller
	sttm   *sttmock.Provider
	llmm   *llmmock.Provider
	ttsm   *ttsmock.Provider
	out    *playbackSink
	events *eventLog
	mem    *memory.Ring
	cancel context.CancelFunc
}

func newHarness(t *testing.T, mutate func(*turn.Config, *harness)) *harness {
	t.Helper()

	h := &harness{
		sttm:   &sttmock.Provider{},
		llmm:   &llmmock.Provider{},
		ttsm:   &ttsmock.Provider{},
		out:    &playbackSink{},
		events: &eventLog{},
	}
	ring, err := memory.NewRing(memory.DefaultCapacity)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	h.mem = ring

	cfg := turn.Config{
		Segmenter: turn.SegmenterConfig{
			MinSpeech:  150 * time.Millisecond,
			MaxSpeech:  10 * time.Second,
			MinSilence: 200 * time.Millisecond,
			SpeechPad:  100 * time.Millisecond,
		},
		BargeIn: turn.BargeInConfig{
			Window:                  200 * time.Millisecond,
			SpeechRatio:             2.0 / 3.0,
			StartedTalkingThreshold: 0.05,
		},
	}
	if mutate != nil {
		mutate(&cfg, h)
	}

	ports := turn.Ports{
		VAD:  energy.New(),
		Wake: phonetic.New(""),
		STT:  h.sttm,
		LLM:  h.llmm,
		TTS:  h.ttsm,
	}
	ctrl, err := turn.New(ports, ring, h.out, cfg, turn.WithEvents(h.events.sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("controller did not shut down")
		}
	})
	return h
}

// pcmFrame builds a 50ms mono 16kHz frame at the given amplitude in [0, 1].
func pcmFrame(amp float64) audio.Frame {
	samples := make([]int16, 800)
	v := int16(amp * 32767)
	for i := range samples {
		samples[i] = v
	}
	return audio.Frame{
		PCM:        audio.EncodeSamples(samples),
		SampleRate: 16000,
		Channels:   1,
	}
}

// speak submits speech frames followed by enough silence to close the
// utterance under the harness segmenter config.
func (h *harness) speak(t *testing.T, speechFrames int) {
	t.Helper()
	for i := 0; i < speechFrames; i++ {
		h.submit(t, pcmFrame(0.5))
	}
	for i := 0; i < 6; i++ {
		h.submit(t, pcmFrame(0))
	}
}

func (h *harness) submit(t *testing.T, f audio.Frame) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !h.ctrl.Submit(f) {
		if time.Now().After(deadline) {
			t.Fatal("frame buffer stayed full")
		}
		time.Sleep(time.Millisecond)
	}
	// Pace submissions so the owner loop interleaves frame handling with
	// pipeline results the way live capture would.
	time.Sleep(2 * time.Millisecond)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func transcript(text string) stt.Transcript {
	return stt.Transcript{Text: text, Confidence: 0.9}
}

func TestWakeWithCommandCompletesTurn(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{transcript("computer what is the capital of japan")}
		h.llmm.Responses = []llm.Response{{Text: "Tokyo.", FinishReason: llm.FinishStop}}
		h.ttsm.Frames = []audio.Frame{pcmFrame(0.3)}
	})

	h.speak(t, 8)
	waitFor(t, "turn completion", func() bool { return h.mem.Len() == 1 })
	waitFor(t, "return to idle", func() bool { return h.ctrl.State() == turn.StateIdle })

	got := h.mem.Snapshot()
	if got[0].UserText != "what is the capital of japan" {
		t.Errorf("user text = %q, want wake word stripped", got[0].UserText)
	}
	if got[0].AssistantText != "Tokyo." {
		t.Errorf("assistant text = %q, want %q", got[0].AssistantText, "Tokyo.")
	}

	for _, typ := range []turn.EventType{
		turn.EventWake, turn.EventStarted, turn.EventTranscribed,
		turn.EventResponding, turn.EventSpeaking, turn.EventCompleted,
	} {
		if h.events.count(typ) != 1 {
			t.Errorf("event %s seen %d times, want 1 (sequence: %v)",
				typ, h.events.count(typ), h.events.types())
		}
	}

	h.out.mu.Lock()
	played := len(h.out.frames)
	h.out.mu.Unlock()
	if played != 1 {
		t.Errorf("played %d frames, want 1", played)
	}
}

func TestWakeThenSeparateCommand(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{
			transcript("computer"),
			transcript("turn on the lights"),
		}
		h.llmm.Responses = []llm.Response{{Text: "Done.", FinishReason: llm.FinishStop}}
		h.ttsm.Frames = []audio.Frame{pcmFrame(0.3)}
	})

	h.speak(t, 8)
	waitFor(t, "listening after wake", func() bool { return h.ctrl.State() == turn.StateListening })

	h.speak(t, 8)
	waitFor(t, "turn completion", func() bool { return h.mem.Len() == 1 })
	waitFor(t, "return to idle", func() bool { return h.ctrl.State() == turn.StateIdle })

	got := h.mem.Snapshot()
	if got[0].UserText != "turn on the lights" {
		t.Errorf("user text = %q", got[0].UserText)
	}
	if h.llmm.CallCount() != 1 {
		t.Errorf("LLM called %d times, want 1", h.llmm.CallCount())
	}
}

func TestUnaddressedSpeechStaysIdle(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{transcript("nice weather today")}
	})

	h.speak(t, 8)
	waitFor(t, "wake check to finish", func() bool { return h.sttm.CallCount() == 1 })

	// Give the controller time to (wrongly) act on it.
	time.Sleep(100 * time.Millisecond)
	if h.ctrl.State() != turn.StateIdle {
		t.Fatalf("state = %v, want idle", h.ctrl.State())
	}
	if h.llmm.CallCount() != 0 {
		t.Error("unaddressed speech reached the language model")
	}
	if h.mem.Len() != 0 {
		t.Error("unaddressed speech was written to memory")
	}
	if h.events.count(turn.EventWake) != 0 {
		t.Error("wake event emitted without a wake word")
	}
}

func TestNoiseInListeningReturnsToIdle(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{transcript("computer")}
	})

	h.speak(t, 8)
	waitFor(t, "listening after wake", func() bool { return h.ctrl.State() == turn.StateListening })

	// Two speech frames (100ms) is under the 150ms minimum.
	h.speak(t, 2)
	waitFor(t, "noise discard to idle", func() bool { return h.ctrl.State() == turn.StateIdle })

	if h.sttm.CallCount() != 1 {
		t.Errorf("STT called %d times, want 1 (noise must not be transcribed)", h.sttm.CallCount())
	}
	if h.events.count(turn.EventStarted) != 0 {
		t.Error("noise started a turn")
	}
}

func TestEmptyTranscriptIsSilentNoop(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{
			transcript("computer"),
			transcript("   "),
		}
	})

	h.speak(t, 8)
	waitFor(t, "listening after wake", func() bool { return h.ctrl.State() == turn.StateListening })

	h.speak(t, 8)
	waitFor(t, "noop back to idle", func() bool {
		return h.ctrl.State() == turn.StateIdle && h.sttm.CallCount() == 2
	})

	if h.llmm.CallCount() != 0 {
		t.Error("empty transcript reached the language model")
	}
	if h.mem.Len() != 0 {
		t.Error("empty transcript was written to memory")
	}
	if n := h.events.count(turn.EventError); n != 0 {
		t.Errorf("noop emitted %d error events", n)
	}
	if n := h.events.count(turn.EventCompleted); n != 0 {
		t.Errorf("noop emitted %d completed events", n)
	}
}

func TestPortFailureFailsTurnWithoutMemoryWrite(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{transcript("computer what time is it")}
		h.llmm.Err = errors.New("backend down")
	})

	h.speak(t, 8)
	waitFor(t, "error event", func() bool { return h.events.count(turn.EventError) == 1 })
	waitFor(t, "return to idle", func() bool { return h.ctrl.State() == turn.StateIdle })

	if h.mem.Len() != 0 {
		t.Error("failed turn was written to memory")
	}
	if h.llmm.CallCount() != 1 {
		t.Errorf("LLM called %d times, want 1 (no retry)", h.llmm.CallCount())
	}
}

func TestPortTimeoutFailsTurn(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		cfg.LLMTimeout = 50 * time.Millisecond
		h.sttm.Results = []stt.Transcript{transcript("computer tell me a story")}
		h.llmm.Delay = func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
	})

	h.speak(t, 8)
	waitFor(t, "error event", func() bool { return h.events.count(turn.EventError) == 1 })
	waitFor(t, "return to idle", func() bool { return h.ctrl.State() == turn.StateIdle })

	if h.events.count(turn.EventCancelled) != 0 {
		t.Error("timeout was reported as cancellation")
	}
	if h.mem.Len() != 0 {
		t.Error("timed-out turn was written to memory")
	}
}

func TestBargeInCancelsPlaybackAndListens(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{
			transcript("computer read me the news"),
			transcript("actually stop"),
		}
		h.llmm.Responses = []llm.Response{
			{Text: "Here is the news...", FinishReason: llm.FinishStop},
			{Text: "Okay.", FinishReason: llm.FinishStop},
		}
		h.ttsm.Frames = []audio.Frame{pcmFrame(0.3), pcmFrame(0.3)}
		h.ttsm.Gate = gate
	})

	h.speak(t, 8)
	waitFor(t, "speaking state", func() bool { return h.ctrl.State() == turn.StateSpeaking })

	// Sustained interrupting speech; no silence, the user keeps talking.
	for i := 0; i < 8; i++ {
		h.submit(t, pcmFrame(0.5))
	}
	waitFor(t, "barge-in to listening", func() bool { return h.ctrl.State() == turn.StateListening })

	if h.out.stopCount() == 0 {
		t.Fatal("playback was not stopped on barge-in")
	}
	if h.events.count(turn.EventCancelled) != 1 {
		t.Fatalf("cancelled events = %d, want 1", h.events.count(turn.EventCancelled))
	}
	if h.mem.Len() != 0 {
		t.Fatal("interrupted turn was written to memory")
	}

	// Second turn flows without a wake word; unblock the TTS gate first.
	close(gate)
	h.speak(t, 8)
	waitFor(t, "second turn completion", func() bool { return h.mem.Len() == 1 })

	got := h.mem.Snapshot()
	if got[0].UserText != "actually stop" {
		t.Errorf("post-interrupt user text = %q", got[0].UserText)
	}
	if h.events.count(turn.EventWake) != 1 {
		t.Errorf("wake events = %d, want 1 (no wake word needed after interrupt)",
			h.events.count(turn.EventWake))
	}
}

func TestStopDuringSpeakingCancelsToIdle(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{transcript("computer read me the news")}
		h.llmm.Responses = []llm.Response{{Text: "Here is the news...", FinishReason: llm.FinishStop}}
		h.ttsm.Frames = []audio.Frame{pcmFrame(0.3)}
		h.ttsm.Gate = gate
	})

	h.speak(t, 8)
	waitFor(t, "speaking state", func() bool { return h.ctrl.State() == turn.StateSpeaking })

	h.ctrl.Stop()
	waitFor(t, "stop to idle", func() bool { return h.ctrl.State() == turn.StateIdle })

	if h.out.stopCount() == 0 {
		t.Error("playback was not stopped")
	}
	if h.events.count(turn.EventCancelled) != 1 {
		t.Errorf("cancelled events = %d, want 1", h.events.count(turn.EventCancelled))
	}
	if h.mem.Len() != 0 {
		t.Error("stopped turn was written to memory")
	}
}

func TestClearMemory(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 3; i++ {
		if err := h.mem.Append(memory.Exchange{UserText: "q", AssistantText: "a"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := h.ctrl.ClearMemory(context.Background()); err != nil {
		t.Fatalf("ClearMemory: %v", err)
	}
	if h.mem.Len() != 0 {
		t.Errorf("memory length = %d after clear, want 0", h.mem.Len())
	}
}

func TestHistoryIsSentOldestFirst(t *testing.T) {
	h := newHarness(t, func(cfg *turn.Config, h *harness) {
		h.sttm.Results = []stt.Transcript{transcript("computer and in france")}
		h.llmm.Responses = []llm.Response{{Text: "Paris.", FinishReason: llm.FinishStop}}
		h.ttsm.Frames = []audio.Frame{pcmFrame(0.3)}
	})

	seedErr := h.mem.Append(memory.Exchange{
		UserText:      "what is the capital of japan",
		AssistantText: "Tokyo.",
		Timestamp:     time.Now(),
	})
	if seedErr != nil {
		t.Fatalf("Append: %v", seedErr)
	}

	h.speak(t, 8)
	waitFor(t, "turn completion", func() bool { return h.mem.Len() == 2 })

	req := h.llmm.LastRequest()
	if req == nil {
		t.Fatal("no LLM request recorded")
	}
	if len(req.Messages) != 3 {
		t.Fatalf("got %d messages, want 3 (user, assistant, user)", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != "what is the capital of japan" {
		t.Errorf("message 0 = %+v, want prior user text", req.Messages[0])
	}
	if req.Messages[1].Role != llm.RoleAssistant || req.Messages[1].Content != "Tokyo." {
		t.Errorf("message 1 = %+v, want prior assistant text", req.Messages[1])
	}
	if req.Messages[2].Role != llm.RoleUser || req.Messages[2].Content != "and in france" {
		t.Errorf("message 2 = %+v, want current transcript", req.Messages[2])
	}
}
