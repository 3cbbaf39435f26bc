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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, "tick", "report", 1500*time.Millisecond)
	m.RecordCycle(ctx, "tick", "report", 2*time.Second)
	m.RecordCycle(ctx, "force", "empty", 10*time.Millisecond)

	rm := collect(t, reader)

	met := findMetric(rm, "discursa.cycles")
	if met == nil {
		t.Fatal("cycle counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("cycle counter is not a sum")
	}

	// Find the data point for trigger=tick, outcome=report.
	for _, dp := range sum.DataPoints {
		var trigger, outcome string
		for _, kv := range dp.Attributes.ToSlice() {
			switch string(kv.Key) {
			case "trigger":
				trigger = kv.Value.AsString()
			case "outcome":
				outcome = kv.Value.AsString()
			}
		}
		if trigger == "tick" && outcome == "report" {
			if dp.Value != 2 {
				t.Errorf("counter value = %d, want 2", dp.Value)
			}

			dur := findMetric(rm, "discursa.cycle.duration")
			if dur == nil {
				t.Fatal("cycle duration histogram not found")
			}
			hist, ok := dur.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("cycle duration is not a histogram")
			}
			if len(hist.DataPoints) == 0 {
				t.Fatal("cycle duration has no data points")
			}
			return
		}
	}
	t.Error("data point with trigger=tick outcome=report not found")
}

func TestRecordAnalysis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnalysis(ctx, "gemini", 3*time.Second)
	m.RecordAnalysis(ctx, "gemini", 5*time.Second)

	rm := collect(t, reader)
	met := findMetric(rm, "discursa.analysis.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	found := false
	for _, kv := range dp.Attributes.ToSlice() {
		if string(kv.Key) == "provider" && kv.Value.AsString() == "gemini" {
			found = true
		}
	}
	if !found {
		t.Error("missing provider attribute")
	}
}

func TestRecordFlush(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFlush(ctx, 48000, 2)
	m.RecordFlush(ctx, 96000, 3)

	rm := collect(t, reader)

	met := findMetric(rm, "discursa.flushed_bytes")
	if met == nil {
		t.Fatal("flushed bytes counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("flushed bytes is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 144000 {
		t.Errorf("flushed bytes = %d, want 144000", got)
	}

	speakers := findMetric(rm, "discursa.speakers_per_cycle")
	if speakers == nil {
		t.Fatal("speakers histogram not found")
	}
	hist, ok := speakers.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("speakers metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
		t.Error("expected 2 speaker samples")
	}
}

func TestRecordPublished(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPublished(ctx, 3)
	m.RecordPublished(ctx, 1)

	rm := collect(t, reader)
	met := findMetric(rm, "discursa.published_messages")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 4 {
		t.Errorf("published messages = %d, want 4", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)

	rm := collect(t, reader)
	met := findMetric(rm, "discursa.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

// TestNilMetrics checks that every Record helper is a no-op on a nil
// receiver.
func TestNilMetrics(t *testing.T) {
	ctx := context.Background()
	var m *Metrics

	m.RecordCycle(ctx, "tick", "report", time.Second)
	m.RecordAnalysis(ctx, "gemini", time.Second)
	m.RecordFlush(ctx, 1024, 1)
	m.RecordPublished(ctx, 1)
	m.SessionStarted(ctx)
	m.SessionStopped(ctx)
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
