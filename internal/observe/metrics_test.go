package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordStageLatency(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStageLatency(ctx, "stt", 120*time.Millisecond)
	m.RecordStageLatency(ctx, "llm", 800*time.Millisecond)
	m.RecordStageLatency(ctx, "bogus", time.Second) // ignored

	rm := collect(t, reader)
	for _, name := range []string{"hark.stt.duration", "hark.llm.duration"} {
		metric := findMetric(rm, name)
		if metric == nil {
			t.Fatalf("metric %s not found", name)
		}
		hist, ok := metric.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %s is not a float64 histogram", name)
		}
		if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
			t.Fatalf("metric %s should have exactly one observation", name)
		}
	}
}

func TestRecordTurnOutcomeAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "spoken", 2*time.Second)
	m.RecordTurn(ctx, "cancelled", time.Second)
	m.RecordTurn(ctx, "spoken", time.Second)

	rm := collect(t, reader)
	metric := findMetric(rm, "hark.turns")
	if metric == nil {
		t.Fatal("hark.turns not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("hark.turns is not an int64 sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("got %d outcome series, want 2", len(sum.DataPoints))
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Fatalf("total turns = %d, want 3", total)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic on a nil receiver.
	m.RecordStageLatency(ctx, "stt", time.Second)
	m.RecordTurn(ctx, "failed", time.Second)
	m.RecordWake(ctx)
	m.RecordBargeIn(ctx)
	m.RecordNoiseDiscard(ctx)
	m.AddMemorySize(ctx, 1)
}

func TestMemoryGaugeMovesBothWays(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.AddMemorySize(ctx, 3)
	m.AddMemorySize(ctx, -1)

	rm := collect(t, reader)
	metric := findMetric(rm, "hark.memory.exchanges")
	if metric == nil {
		t.Fatal("hark.memory.exchanges not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("hark.memory.exchanges is not an int64 sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Fatalf("gauge = %+v, want single value 2", sum.DataPoints)
	}
}
