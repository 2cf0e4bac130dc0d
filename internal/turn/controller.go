package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/memory"
	"github.com/MrWong99/hark/pkg/provider/llm"
	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/MrWong99/hark/pkg/provider/tts"
	"github.com/MrWong99/hark/pkg/provider/vad"
	"github.com/MrWong99/hark/pkg/provider/wake"
)

// Output is the playback side of the transport adapter. Play blocks until
// the frame is handed to the transport or ctx is cancelled; StopPlayback cuts
// the audible output immediately, discarding anything buffered.
type Output interface {
	Play(ctx context.Context, frame audio.Frame) error
	StopPlayback()
}

// Ports bundles the capability providers the controller orchestrates. The
// controller never inspects provider identity; everything behind these
// interfaces is replaceable per configuration.
type Ports struct {
	VAD  vad.Engine
	Wake wake.Detector
	STT  stt.Provider
	LLM  llm.Provider
	TTS  tts.Provider
}

func (p Ports) validate() error {
	var errs []error
	if p.VAD == nil {
		errs = append(errs, errors.New("turn: VAD engine is required"))
	}
	if p.Wake == nil {
		errs = append(errs, errors.New("turn: wake detector is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("turn: STT provider is required"))
	}
	if p.LLM == nil {
		errs = append(errs, errors.New("turn: LLM provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("turn: TTS provider is required"))
	}
	return errors.Join(errs...)
}

// Config carries the tuning surface of the turn loop. Zero values fall back
// to the defaults below.
type Config struct {
	// SystemPrompt conditions every generation. Empty uses
	// DefaultSystemPrompt.
	SystemPrompt string

	// Voice selects the TTS voice.
	Voice tts.Voice

	// Sampling holds the LM generation parameters.
	Sampling llm.Sampling

	// Language is the BCP-47 hint passed to STT.
	Language string

	// WakeMinScore is the minimum wake detection score to activate.
	WakeMinScore float64

	// VAD configures the detection session shared by wake gating, utterance
	// capture, and barge-in monitoring.
	VAD vad.SessionConfig

	// Segmenter bounds utterance capture.
	Segmenter SegmenterConfig

	// BargeIn tunes interruption detection during playback.
	BargeIn BargeInConfig

	// Per-port timeouts. An expired timeout fails the turn; it is not a
	// cancellation.
	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// FrameBuffer is the capacity of the inbound frame channel.
	FrameBuffer int
}

func (c *Config) applyDefaults() {
	if c.WakeMinScore <= 0 {
		c.WakeMinScore = 0.7
	}
	if c.Segmenter.MinSpeech <= 0 {
		c.Segmenter.MinSpeech = 300 * time.Millisecond
	}
	if c.Segmenter.MaxSpeech <= 0 {
		c.Segmenter.MaxSpeech = 30 * time.Second
	}
	if c.Segmenter.MinSilence <= 0 {
		c.Segmenter.MinSilence = 800 * time.Millisecond
	}
	if c.Segmenter.SpeechPad < 0 {
		c.Segmenter.SpeechPad = 0
	}
	if c.BargeIn.Window <= 0 {
		c.BargeIn.Window = 900 * time.Millisecond
	}
	if c.BargeIn.SpeechRatio <= 0 {
		c.BargeIn.SpeechRatio = 2.0 / 3.0
	}
	if c.BargeIn.StartedTalkingThreshold <= 0 {
		c.BargeIn.StartedTalkingThreshold = 0.015
	}
	if c.STTTimeout <= 0 {
		c.STTTimeout = 30 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 60 * time.Second
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 60 * time.Second
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = 256
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithEvents registers a lifecycle event sink.
func WithEvents(sink Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithMetrics attaches metric instruments. A nil Metrics is allowed.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// pipeStage tags messages from the pipeline worker to the owner loop.
type pipeStage int

const (
	pipeTranscribed pipeStage = iota
	pipeResponded
	pipeSpeaking
	pipeSpoken
	pipeNoop
	pipeCancelled
	pipeFailed
)

// pipeMsg is one pipeline notification. Terminal stages are pipeSpoken,
// pipeNoop, pipeCancelled, and pipeFailed.
type pipeMsg struct {
	turnID uint64
	stage  pipeStage
	text   string
	err    error
}

// wakeMsg is the result of an idle-state wake check.
type wakeMsg struct {
	detection wake.Detection
	err       error
}

// command is an external control request handled by the owner loop.
type command struct {
	kind  commandKind
	reply chan error
}

type commandKind int

const (
	cmdStop commandKind = iota
	cmdClearMemory
)

// Controller is the turn-taking state machine. All session state and memory
// mutation is owned by the single goroutine running [Controller.Run]; every
// external input (frames, port completions, commands) is serialized through
// its channels, so no mutation races another and a memory snapshot can never
// observe a half-applied append.
type Controller struct {
	cfg     Config
	ports   Ports
	mem     memory.Store
	out     Output
	sink    Sink
	metrics *observe.Metrics

	frames chan audio.Frame
	cmds   chan command
	pipe   chan pipeMsg
	wakeCh chan wakeMsg

	// observable state mirror, written only by the owner goroutine
	state atomic.Int32

	// owner-goroutine state; never touched elsewhere
	seg          *segmenter
	barge        *bargeDetector
	vadSession   vad.SessionHandle
	turnSeq      uint64
	current      *Turn
	cancelTurn   context.CancelFunc
	wakeChecking bool
	reListen     bool
	pendingSeed  []audio.Frame
}

// New creates a Controller. Ports, store, and output are all required.
func New(ports Ports, store memory.Store, out Output, cfg Config, opts ...Option) (*Controller, error) {
	if err := ports.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("turn: memory store is required")
	}
	if out == nil {
		return nil, errors.New("turn: output is required")
	}
	cfg.applyDefaults()

	c := &Controller{
		cfg:    cfg,
		ports:  ports,
		mem:    store,
		out:    out,
		frames: make(chan audio.Frame, cfg.FrameBuffer),
		cmds:   make(chan command, 8),
		pipe:   make(chan pipeMsg, 8),
		wakeCh: make(chan wakeMsg, 1),
		seg:    newSegmenter(cfg.Segmenter),
		barge:  newBargeDetector(cfg.BargeIn),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// State returns the controller's current state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Submit offers a captured frame to the controller without blocking. It
// reports false when the frame buffer is full and the frame was dropped;
// audio must never stall the capture path.
func (c *Controller) Submit(frame audio.Frame) bool {
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

// Stop cancels the in-flight turn, if any, and returns the machine to idle.
// Not an error; the turn ends cancelled.
func (c *Controller) Stop() {
	select {
	case c.cmds <- command{kind: cmdStop}:
	default:
	}
}

// ClearMemory empties the conversation memory. Blocks until applied.
func (c *Controller) ClearMemory(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- command{kind: cmdClearMemory, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the state machine until ctx is cancelled. It must be called
// exactly once; it is the single owner of all session state.
func (c *Controller) Run(ctx context.Context) error {
	session, err := c.ports.VAD.NewSession(ctx, c.cfg.VAD)
	if err != nil {
		return fmt.Errorf("turn: open VAD session: %w", err)
	}
	defer session.Close()
	c.vadSession = session

	c.setState(StateIdle)
	slog.Info("turn controller running",
		"wakeWord", c.ports.Wake.WakeWord(),
		"stt", c.ports.STT.Name(),
		"llm", c.ports.LLM.Name(),
		"tts", c.ports.TTS.Name(),
	)

	for {
		select {
		case <-ctx.Done():
			if c.cancelTurn != nil {
				c.cancelTurn()
			}
			return ctx.Err()

		case frame := <-c.frames:
			c.handleFrame(ctx, frame)

		case msg := <-c.pipe:
			c.handlePipe(ctx, msg)

		case msg := <-c.wakeCh:
			c.handleWake(ctx, msg)

		case cmd := <-c.cmds:
			c.handleCommand(ctx, cmd)
		}
	}
}

// ─── frame handling ──────────────────────────────────────────────────────────

func (c *Controller) handleFrame(ctx context.Context, frame audio.Frame) {
	switch c.State() {
	case StateIdle:
		c.frameIdle(ctx, frame)
	case StateListening:
		c.frameListening(ctx, frame)
	case StateSpeaking:
		c.frameSpeaking(ctx, frame)
	case StateCancelling:
		// Keep the interrupting speech; it seeds the next utterance once the
		// prior turn reaches its terminal status.
		if c.reListen {
			c.pendingSeed = append(c.pendingSeed, frame)
		}
	default:
		// Transcribing/generating: input is ignored while a turn is
		// in flight; only barge-in during playback may interrupt.
	}
}

// frameIdle runs wake gating: utterances are captured under VAD and scored
// for the wake word; nothing else happens on unaddressed speech.
func (c *Controller) frameIdle(ctx context.Context, frame audio.Frame) {
	ev, err := c.vadSession.ProcessFrame(frame)
	if err != nil {
		slog.Warn("vad frame failed", "error", err)
		return
	}
	u, res := c.seg.feed(frame, ev)
	if res != segUtterance || c.wakeChecking {
		return
	}
	c.wakeChecking = true
	go c.checkWake(ctx, u)
}

// checkWake transcribes a candidate utterance with a wake-scoped STT call
// and scores the text. The transcript is discarded unless the wake word
// matched; unaddressed speech never reaches the turn pipeline.
func (c *Controller) checkWake(ctx context.Context, u utterance) {
	sttCtx, cancel := context.WithTimeout(ctx, c.cfg.STTTimeout)
	defer cancel()

	start := time.Now()
	tr, err := c.ports.STT.Transcribe(sttCtx, stt.Segment{
		PCM:        u.pcm,
		SampleRate: u.sampleRate,
		Channels:   u.channels,
		Language:   c.cfg.Language,
	})
	c.metrics.RecordStageLatency(ctx, "stt", time.Since(start))
	if err != nil {
		select {
		case c.wakeCh <- wakeMsg{err: err}:
		case <-ctx.Done():
		}
		return
	}

	select {
	case c.wakeCh <- wakeMsg{detection: c.ports.Wake.Detect(tr.Text)}:
	case <-ctx.Done():
	}
}

func (c *Controller) handleWake(ctx context.Context, msg wakeMsg) {
	c.wakeChecking = false
	if c.State() != StateIdle {
		return
	}
	if msg.err != nil {
		// Wake gating failures are noise from the user's point of view.
		slog.Debug("wake check failed", "error", msg.err)
		return
	}
	det := msg.detection
	if !det.Matched || det.Score < c.cfg.WakeMinScore {
		return
	}

	c.metrics.RecordWake(ctx)
	c.emit(Event{Type: EventWake, Text: c.ports.Wake.WakeWord(), Time: time.Now()})

	if rem := strings.TrimSpace(strings.TrimLeft(det.Remainder, " ,.;:!?")); rem != "" {
		// The command arrived in the same breath as the wake word; skip the
		// listening round and start the turn with the known transcript.
		c.startTurnFromText(ctx, rem)
		return
	}

	c.seg.reset()
	c.vadSession.Reset()
	c.setState(StateListening)
}

func (c *Controller) frameListening(ctx context.Context, frame audio.Frame) {
	ev, err := c.vadSession.ProcessFrame(frame)
	if err != nil {
		slog.Warn("vad frame failed", "error", err)
		return
	}
	u, res := c.seg.feed(frame, ev)
	switch res {
	case segNoise:
		// Too short to be an utterance; expected noise, back to the wake word.
		c.metrics.RecordNoiseDiscard(ctx)
		c.seg.reset()
		c.setState(StateIdle)
	case segUtterance:
		c.startTurn(ctx, u)
	}
}

// frameSpeaking watches for barge-in while playback is live.
func (c *Controller) frameSpeaking(ctx context.Context, frame audio.Frame) {
	ev, err := c.vadSession.ProcessFrame(frame)
	if err != nil {
		slog.Warn("vad frame failed", "error", err)
		return
	}
	speech := ev.Probability >= c.cfg.BargeIn.StartedTalkingThreshold
	if !c.barge.feed(frame, speech) {
		return
	}

	// Sustained incoming speech: cut playback now, cancel the turn, and
	// re-enter listening with the interrupting audio once the worker is done.
	c.metrics.RecordBargeIn(ctx)
	c.pendingSeed = c.barge.window()
	c.barge.reset()
	c.reListen = true
	c.setState(StateCancelling)
	c.out.StopPlayback()
	if c.cancelTurn != nil {
		c.cancelTurn()
	}
}

// ─── turn pipeline ───────────────────────────────────────────────────────────

func (c *Controller) startTurn(ctx context.Context, u utterance) {
	c.turnSeq++
	c.current = &Turn{ID: c.turnSeq, StartedAt: time.Now(), Status: StatusPending}
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancelTurn = cancel
	c.setState(StateTranscribing)
	c.emit(Event{Type: EventStarted, TurnID: c.current.ID, Time: time.Now()})

	go c.runPipeline(turnCtx, c.current.ID, &u, "")
}

// startTurnFromText starts a turn whose transcript is already known (wake
// word plus command in one utterance). The STT stage is skipped.
func (c *Controller) startTurnFromText(ctx context.Context, transcript string) {
	c.turnSeq++
	c.current = &Turn{
		ID:         c.turnSeq,
		Transcript: transcript,
		StartedAt:  time.Now(),
		Status:     StatusSTTDone,
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancelTurn = cancel
	c.setState(StateGenerating)
	c.emit(Event{Type: EventStarted, TurnID: c.current.ID, Time: time.Now()})
	c.emit(Event{Type: EventTranscribed, TurnID: c.current.ID, Text: transcript, Time: time.Now()})
	c.emit(Event{Type: EventResponding, TurnID: c.current.ID, Time: time.Now()})

	go c.runPipeline(turnCtx, c.current.ID, nil, transcript)
}

// runPipeline executes the STT → LM → TTS sequence for one turn. It reports
// progress and the terminal status through c.pipe; the owner loop applies
// them only while this turn is still current, so results from a cancelled
// turn are never applied to state or memory.
func (c *Controller) runPipeline(ctx context.Context, id uint64, u *utterance, transcript string) {
	ctx, span := observe.StartSpan(ctx, "turn.pipeline",
		trace.WithAttributes(attribute.Int64("turn.id", int64(id))),
	)
	defer span.End()

	send := func(msg pipeMsg) {
		msg.turnID = id
		select {
		case c.pipe <- msg:
		case <-ctx.Done():
			// Still deliver terminal messages so the owner can finish
			// CANCELLING; the buffered channel makes this non-blocking in
			// practice.
			select {
			case c.pipe <- msg:
			default:
			}
		}
	}

	// Stage 1: STT (skipped when the transcript is already known).
	if u != nil {
		sttCtx, cancel := context.WithTimeout(ctx, c.cfg.STTTimeout)
		start := time.Now()
		tr, err := c.ports.STT.Transcribe(sttCtx, stt.Segment{
			PCM:        u.pcm,
			SampleRate: u.sampleRate,
			Channels:   u.channels,
			Language:   c.cfg.Language,
		})
		cancel()
		c.metrics.RecordStageLatency(ctx, "stt", time.Since(start))
		if err != nil {
			send(c.terminalFor(ctx, "stt", err))
			return
		}
		transcript = strings.TrimSpace(tr.Text)
		if transcript == "" {
			// Whitespace-only transcript: a no-op, not a fault.
			send(pipeMsg{stage: pipeNoop})
			return
		}
		send(pipeMsg{stage: pipeTranscribed, text: transcript})
	}

	// Stage 2: LM, conditioned on the full memory snapshot.
	req := buildRequest(c.cfg.SystemPrompt, c.mem.Snapshot(), transcript, c.cfg.Sampling)
	llmCtx, cancel := context.WithTimeout(ctx, c.cfg.LLMTimeout)
	start := time.Now()
	resp, err := c.ports.LLM.Complete(llmCtx, req)
	cancel()
	c.metrics.RecordStageLatency(ctx, "llm", time.Since(start))
	if err != nil {
		send(c.terminalFor(ctx, "llm", err))
		return
	}
	// A response truncated at the token cap is still a valid response.
	response := strings.TrimSpace(resp.Text)
	if response == "" {
		send(c.terminalFor(ctx, "llm", errors.New("empty response text")))
		return
	}
	send(pipeMsg{stage: pipeResponded, text: response})

	// Stage 3: TTS synthesis and playback.
	ttsCtx, cancel := context.WithTimeout(ctx, c.cfg.TTSTimeout)
	defer cancel()
	start = time.Now()
	stream, err := c.ports.TTS.Synthesize(ttsCtx, response, c.cfg.Voice)
	if err != nil {
		c.metrics.RecordStageLatency(ctx, "tts", time.Since(start))
		send(c.terminalFor(ctx, "tts", err))
		return
	}
	send(pipeMsg{stage: pipeSpeaking, text: response})

	for frame := range stream.Frames {
		if err := c.out.Play(ctx, frame); err != nil {
			c.metrics.RecordStageLatency(ctx, "tts", time.Since(start))
			send(c.terminalFor(ctx, "tts", err))
			return
		}
	}
	c.metrics.RecordStageLatency(ctx, "tts", time.Since(start))

	if err := stream.Err(); err != nil {
		send(c.terminalFor(ctx, "tts", err))
		return
	}
	if ctx.Err() != nil {
		send(pipeMsg{stage: pipeCancelled})
		return
	}
	send(pipeMsg{stage: pipeSpoken, text: response})
}

// terminalFor classifies a failed port call: cancellation of the turn itself
// ends the turn cancelled; anything else, including an expired per-call
// timeout, fails it.
func (c *Controller) terminalFor(turnCtx context.Context, stage string, err error) pipeMsg {
	if turnCtx.Err() != nil {
		return pipeMsg{stage: pipeCancelled}
	}
	return pipeMsg{stage: pipeFailed, err: fmt.Errorf("%s: %w", stage, err)}
}

// ─── pipeline result application ─────────────────────────────────────────────

func (c *Controller) handlePipe(ctx context.Context, msg pipeMsg) {
	if c.current == nil || msg.turnID != c.current.ID {
		// Stale result from an already-finished turn; never applied.
		return
	}

	switch msg.stage {
	case pipeTranscribed:
		c.current.Transcript = msg.text
		c.current.Status = StatusSTTDone
		c.setState(StateGenerating)
		c.emit(Event{Type: EventTranscribed, TurnID: msg.turnID, Text: msg.text, Time: time.Now()})
		c.emit(Event{Type: EventResponding, TurnID: msg.turnID, Time: time.Now()})

	case pipeResponded:
		c.current.ResponseText = msg.text
		c.current.Status = StatusResponded

	case pipeSpeaking:
		c.barge.reset()
		c.vadSession.Reset()
		c.setState(StateSpeaking)
		c.emit(Event{Type: EventSpeaking, TurnID: msg.turnID, Text: msg.text, Time: time.Now()})

	case pipeNoop:
		// Empty transcript: drop the turn silently and return to idle.
		c.resetAfterTurn(StateIdle)

	case pipeSpoken:
		c.current.Status = StatusSpoken
		c.current.CompletedAt = time.Now()
		c.commitCurrent(ctx)
		c.emit(Event{Type: EventCompleted, TurnID: msg.turnID, Text: c.current.ResponseText, Time: time.Now()})
		c.metrics.RecordTurn(ctx, "spoken", time.Since(c.current.StartedAt))
		c.resetAfterTurn(StateIdle)

	case pipeCancelled:
		c.current.Status = StatusCancelled
		c.current.CompletedAt = time.Now()
		c.emit(Event{Type: EventCancelled, TurnID: msg.turnID, Time: time.Now()})
		c.metrics.RecordTurn(ctx, "cancelled", time.Since(c.current.StartedAt))
		if c.reListen {
			c.resumeListening()
		} else {
			c.resetAfterTurn(StateIdle)
		}

	case pipeFailed:
		c.current.Status = StatusFailed
		c.current.CompletedAt = time.Now()
		slog.Error("turn failed", "turn", msg.turnID, "error", msg.err)
		c.emit(Event{Type: EventError, TurnID: msg.turnID, Err: msg.err.Error(), Time: time.Now()})
		c.metrics.RecordTurn(ctx, "failed", time.Since(c.current.StartedAt))
		c.resetAfterTurn(StateIdle)
	}
}

// commitCurrent appends the spoken turn to memory. Only this path writes.
func (c *Controller) commitCurrent(ctx context.Context) {
	before := c.mem.Len()
	ex := memory.Exchange{
		UserText:      c.current.Transcript,
		AssistantText: c.current.ResponseText,
		Timestamp:     c.current.CompletedAt,
	}
	if err := c.mem.Append(ex); err != nil {
		// The turn already completed audibly; a journal write failure must
		// not fail it retroactively.
		slog.Error("memory append failed", "error", err)
		return
	}
	c.metrics.AddMemorySize(ctx, int64(c.mem.Len()-before))
}

// resetAfterTurn clears per-turn state and moves to the given state.
func (c *Controller) resetAfterTurn(next State) {
	if c.cancelTurn != nil {
		c.cancelTurn()
		c.cancelTurn = nil
	}
	c.current = nil
	c.reListen = false
	c.pendingSeed = nil
	c.seg.reset()
	c.barge.reset()
	c.setState(next)
}

// resumeListening re-enters listening after barge-in, replaying the
// interrupting audio as the start of the next utterance. No wake word is
// required on this path.
func (c *Controller) resumeListening() {
	if c.cancelTurn != nil {
		c.cancelTurn()
		c.cancelTurn = nil
	}
	c.current = nil
	c.reListen = false

	seed := c.pendingSeed
	c.pendingSeed = nil
	c.seg.reset()
	c.barge.reset()
	c.vadSession.Reset()
	c.setState(StateListening)
	c.seg.seed(seed, c.vadSession)
}

// ─── commands ────────────────────────────────────────────────────────────────

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStop:
		c.stop()
	case cmdClearMemory:
		before := c.mem.Len()
		err := c.mem.Clear()
		if err == nil {
			c.metrics.AddMemorySize(ctx, -int64(before))
		}
		if cmd.reply != nil {
			cmd.reply <- err
		}
	}
}

// stop cancels whatever is in flight and returns to idle. From listening
// there is no worker to wait for; active pipeline states wait for the
// worker's terminal message in CANCELLING.
func (c *Controller) stop() {
	switch c.State() {
	case StateListening:
		c.emit(Event{Type: EventCancelled, Time: time.Now()})
		c.resetAfterTurn(StateIdle)
	case StateTranscribing, StateGenerating, StateSpeaking:
		c.reListen = false
		c.setState(StateCancelling)
		c.out.StopPlayback()
		if c.cancelTurn != nil {
			c.cancelTurn()
		}
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Controller) emit(ev Event) {
	if c.sink != nil {
		c.sink(ev)
	}
}
