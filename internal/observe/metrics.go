// Package observe provides application-wide observability primitives for
// Discursa: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Discursa metrics.
const meterName = "github.com/discursa/discursa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
//
// The Record helpers tolerate a nil receiver and record nothing in that
// case, so components can run without metrics wired up.
type Metrics struct {
	// --- Latency histograms ---

	// CycleDuration tracks full analysis cycle latency (flush, convert,
	// analyse, publish). Use with attributes:
	//   attribute.String("trigger", ...), attribute.String("outcome", ...)
	CycleDuration metric.Float64Histogram

	// AnalysisDuration tracks backend analysis latency. Use with attribute:
	//   attribute.String("provider", ...)
	AnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// Cycles counts analysis cycles. Use with attributes:
	//   attribute.String("trigger", ...), attribute.String("outcome", ...)
	Cycles metric.Int64Counter

	// FlushedBytes counts PCM bytes drained from capture accumulators.
	FlushedBytes metric.Int64Counter

	// PublishedMessages counts Discord messages sent for reports and notices.
	PublishedMessages metric.Int64Counter

	// --- Distributions ---

	// SpeakersPerCycle tracks how many distinct speakers each flush produced.
	SpeakersPerCycle metric.Int64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of guilds currently capturing.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// cycleBuckets defines histogram bucket boundaries (in seconds) sized for
// analysis cycles, which upload audio files and wait on model inference.
var cycleBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CycleDuration, err = m.Float64Histogram("discursa.cycle.duration",
		metric.WithDescription("Latency of a full analysis cycle by trigger and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("discursa.analysis.duration",
		metric.WithDescription("Latency of backend analysis by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakersPerCycle, err = m.Int64Histogram("discursa.speakers_per_cycle",
		metric.WithDescription("Distinct speakers produced by each capture flush."),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Cycles, err = m.Int64Counter("discursa.cycles",
		metric.WithDescription("Total analysis cycles by trigger and outcome."),
	); err != nil {
		return nil, err
	}
	if met.FlushedBytes, err = m.Int64Counter("discursa.flushed_bytes",
		metric.WithDescription("Total PCM bytes drained from capture accumulators."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.PublishedMessages, err = m.Int64Counter("discursa.published_messages",
		metric.WithDescription("Total Discord messages sent for reports and notices."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("discursa.active_sessions",
		metric.WithDescription("Number of guilds currently capturing."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("discursa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCycle records one finished analysis cycle with its duration.
func (m *Metrics) RecordCycle(ctx context.Context, trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	)
	m.Cycles.Add(ctx, 1, attrs)
	m.CycleDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordAnalysis records the latency of one backend analysis call.
func (m *Metrics) RecordAnalysis(ctx context.Context, provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordFlush records the size and speaker count of one capture flush.
func (m *Metrics) RecordFlush(ctx context.Context, bytes int64, speakers int) {
	if m == nil {
		return
	}
	m.FlushedBytes.Add(ctx, bytes)
	m.SpeakersPerCycle.Record(ctx, int64(speakers))
}

// RecordPublished records n Discord messages sent.
func (m *Metrics) RecordPublished(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.PublishedMessages.Add(ctx, n)
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionStopped decrements the active session gauge.
func (m *Metrics) SessionStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
