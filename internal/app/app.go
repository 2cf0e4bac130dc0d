// Package app wires all Hark subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the dialogue loop and HTTP server, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMemoryStore, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hark/internal/config"
	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/internal/server"
	"github.com/MrWong99/hark/internal/transport"
	"github.com/MrWong99/hark/internal/turn"
	"github.com/MrWong99/hark/pkg/memory"
	"github.com/MrWong99/hark/pkg/provider/llm"
	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/MrWong99/hark/pkg/provider/tts"
	"github.com/MrWong99/hark/pkg/provider/vad"
	"github.com/MrWong99/hark/pkg/provider/vad/energy"
	"github.com/MrWong99/hark/pkg/provider/wake"
	"github.com/MrWong99/hark/pkg/provider/wake/phonetic"
)

// defaultListenAddr is used when server.listen_addr is not configured.
const defaultListenAddr = ":8080"

// Providers holds one interface value per provider slot. LLM, STT, and TTS
// are required; a nil VAD falls back to the built-in energy detector.
// Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine
}

func (p *Providers) validate() error {
	var errs []error
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes and orchestrates the Hark dialogue loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store   memory.Store
	wake    wake.Detector
	ctrl    *turn.Controller
	router  *transport.Router
	events  *server.EventHub
	srv     *server.Server
	metrics *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMemoryStore injects a memory store instead of creating one from config.
func WithMemoryStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects metric instruments instead of using the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: memory store setup and
// journal replay, wake detector construction, turn controller assembly, and
// the HTTP server route table.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: providers: %w", err)
	}
	if providers.VAD == nil {
		providers.VAD = energy.New()
		slog.Debug("no VAD provider configured, using energy detector")
	}

	// ── 1. Memory store ──────────────────────────────────────────────────
	if err := a.initMemory(); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 3. Wake detector ─────────────────────────────────────────────────
	a.wake = phonetic.New(cfg.Wake.Word)

	// ── 4. Playback router + event hub ───────────────────────────────────
	a.router = transport.NewRouter()
	a.events = server.NewEventHub()

	// ── 5. Turn controller ───────────────────────────────────────────────
	ctrl, err := turn.New(
		turn.Ports{
			VAD:  providers.VAD,
			Wake: a.wake,
			STT:  providers.STT,
			LLM:  providers.LLM,
			TTS:  providers.TTS,
		},
		a.store,
		a.router,
		turnConfig(cfg),
		turn.WithEvents(a.events.Publish),
		turn.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}
	a.ctrl = ctrl

	// ── 6. HTTP server ───────────────────────────────────────────────────
	a.srv = server.New(a.serverOptions())

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory sets up the bounded conversation memory, optionally journaled to
// disk, unless a store was injected.
func (a *App) initMemory() error {
	if a.store != nil {
		return nil // injected
	}

	capacity := a.cfg.Memory.Capacity
	if capacity == 0 {
		capacity = memory.DefaultCapacity
	}
	ring, err := memory.NewRing(capacity)
	if err != nil {
		return err
	}

	path := a.cfg.Memory.JournalPath
	if path == "" {
		a.store = ring
		return nil
	}

	loaded, err := memory.Replay(ring, path)
	if err != nil {
		return fmt.Errorf("replay journal %q: %w", path, err)
	}
	if loaded > 0 {
		slog.Info("replayed conversation journal", "path", path, "exchanges", loaded, "retained", ring.Len())
	}

	journal, err := memory.NewJournal(ring, path)
	if err != nil {
		return err
	}
	a.store = journal
	a.closers = append(a.closers, journal.Close)
	return nil
}

// serverOptions assembles the HTTP surface around the controller.
func (a *App) serverOptions() server.Options {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}

	h := health.New().WithInfo(func() health.Info {
		return health.Info{
			State:           a.ctrl.State().String(),
			MemoryExchanges: a.store.Len(),
		}
	})

	opts := server.Options{
		Addr:     addr,
		Dialogue: a.ctrl,
		Router:   a.router,
		Health:   h,
		Events:   a.events,
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		opts.CertFile = tls.CertFile
		opts.KeyFile = tls.KeyFile
	}
	return opts
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the turn controller and the HTTP server and blocks until ctx is
// cancelled or either subsystem fails. When ctx is done, Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.ctrl.Run(gctx) })
	g.Go(func() error { return a.srv.ListenAndServe(gctx) })

	slog.Info("app running",
		"memory", a.store.Len(),
		"wakeWord", a.wake.WakeWord(),
	)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// turnConfig converts the YAML configuration into the controller's tuning
// surface. Zero config values are left zero so the controller applies its own
// defaults; sampling falls back to parameters tuned for short spoken answers.
func turnConfig(cfg *config.Config) turn.Config {
	d := cfg.Dialogue
	return turn.Config{
		SystemPrompt: d.SystemPrompt,
		Voice: tts.Voice{
			ID:   d.Voice.VoiceID,
			Name: d.Voice.Name,
		},
		Sampling:     samplingConfig(d.Sampling),
		Language:     d.Language,
		WakeMinScore: cfg.Wake.MinScore,
		VAD: vad.SessionConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		Segmenter: turn.SegmenterConfig{
			MinSpeech:  ms(cfg.Listen.MinSpeechMs),
			MaxSpeech:  ms(cfg.Listen.MaxSpeechMs),
			MinSilence: ms(cfg.Listen.MinSilenceMs),
			SpeechPad:  ms(cfg.Listen.SpeechPadMs),
		},
		BargeIn: turn.BargeInConfig{
			Window:                  ms(cfg.BargeIn.WindowMs),
			SpeechRatio:             cfg.BargeIn.SpeechRatio,
			StartedTalkingThreshold: cfg.BargeIn.StartedTalkingThreshold,
		},
		STTTimeout: ms(d.Timeouts.STTMs),
		LLMTimeout: ms(d.Timeouts.LLMMs),
		TTSTimeout: ms(d.Timeouts.TTSMs),
	}
}

// samplingConfig fills unset sampling parameters with defaults that keep
// spoken answers short and non-repetitive.
func samplingConfig(s config.SamplingConfig) llm.Sampling {
	out := llm.Sampling{
		Temperature:   s.Temperature,
		TopP:          s.TopP,
		RepeatPenalty: s.RepeatPenalty,
		MaxTokens:     s.MaxTokens,
	}
	if out.Temperature == 0 {
		out.Temperature = 0.2
	}
	if out.TopP == 0 {
		out.TopP = 0.9
	}
	if out.RepeatPenalty == 0 {
		out.RepeatPenalty = 1.2
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 50
	}
	return out
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
