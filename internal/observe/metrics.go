// Package observe provides application-wide observability primitives for
// Hark: OpenTelemetry metrics, tracing, and structured logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hark metrics.
const meterName = "github.com/MrWong99/hark"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks language model inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency, first frame to
	// stream close.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency from utterance finalize to
	// terminal status.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts turns reaching a terminal status. Use with attribute:
	//   attribute.String("outcome", "spoken"|"cancelled"|"failed")
	Turns metric.Int64Counter

	// WakeDetections counts wake-word activations.
	WakeDetections metric.Int64Counter

	// BargeIns counts playback interruptions.
	BargeIns metric.Int64Counter

	// NoiseDiscards counts sub-minimum utterances dropped as noise.
	NoiseDiscards metric.Int64Counter

	// --- Gauges ---

	// MemoryExchanges tracks the number of exchanges currently held in
	// conversation memory.
	MemoryExchanges metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("hark.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("hark.llm.duration",
		metric.WithDescription("Latency of language model inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("hark.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("hark.turn.duration",
		metric.WithDescription("End-to-end turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("hark.turns",
		metric.WithDescription("Total turns by terminal outcome."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("hark.wake.detections",
		metric.WithDescription("Total wake-word activations."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("hark.barge_ins",
		metric.WithDescription("Total playback interruptions."),
	); err != nil {
		return nil, err
	}
	if met.NoiseDiscards, err = m.Int64Counter("hark.noise.discards",
		metric.WithDescription("Total sub-minimum utterances discarded as noise."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.MemoryExchanges, err = m.Int64UpDownCounter("hark.memory.exchanges",
		metric.WithDescription("Exchanges currently held in conversation memory."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStageLatency records one pipeline stage duration on the matching
// histogram. Unknown stages are ignored. Nil-safe.
func (m *Metrics) RecordStageLatency(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	switch stage {
	case "stt":
		m.STTDuration.Record(ctx, d.Seconds())
	case "llm":
		m.LLMDuration.Record(ctx, d.Seconds())
	case "tts":
		m.TTSDuration.Record(ctx, d.Seconds())
	}
}

// RecordTurn records a terminal turn with its outcome and end-to-end
// duration. Nil-safe.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.TurnDuration.Record(ctx, d.Seconds())
}

// RecordWake increments the wake detection counter. Nil-safe.
func (m *Metrics) RecordWake(ctx context.Context) {
	if m == nil {
		return
	}
	m.WakeDetections.Add(ctx, 1)
}

// RecordBargeIn increments the barge-in counter. Nil-safe.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.BargeIns.Add(ctx, 1)
}

// RecordNoiseDiscard increments the noise discard counter. Nil-safe.
func (m *Metrics) RecordNoiseDiscard(ctx context.Context) {
	if m == nil {
		return
	}
	m.NoiseDiscards.Add(ctx, 1)
}

// AddMemorySize moves the memory gauge by delta. Nil-safe.
func (m *Metrics) AddMemorySize(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.MemoryExchanges.Add(ctx, delta)
}
