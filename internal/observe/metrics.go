// Package observe provides application-wide observability primitives for
// Sprachcoach: OpenTelemetry metrics and tracing.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Sprachcoach metrics.
const meterName = "github.com/MrWong99/sprachcoach"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks time to establish a live session.
	ConnectDuration metric.Float64Histogram

	// AnalysisDuration tracks one-shot feedback request latency.
	AnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// SessionConnects counts connect attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	SessionConnects metric.Int64Counter

	// Fragments counts received transcript fragments. Use with attribute:
	//   attribute.String("direction", "input"|"output")
	Fragments metric.Int64Counter

	// BlocksSent counts audio blocks forwarded to the live session.
	BlocksSent metric.Int64Counter

	// BlocksDroppedStale counts blocks dropped because their session
	// generation no longer matched the active one.
	BlocksDroppedStale metric.Int64Counter

	// TurnsFinalized counts turns that reached analysis dispatch.
	TurnsFinalized metric.Int64Counter

	// TurnsDiscarded counts turns dropped with a whitespace-only buffer or
	// on disconnect.
	TurnsDiscarded metric.Int64Counter

	// AnalysisErrors counts failed one-shot analysis calls.
	AnalysisErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open live sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// UIClients tracks the number of connected UI WebSocket clients.
	UIClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("sprachcoach.connect.duration",
		metric.WithDescription("Time to establish a live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("sprachcoach.analysis.duration",
		metric.WithDescription("Latency of one-shot feedback requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SessionConnects, err = m.Int64Counter("sprachcoach.session.connects",
		metric.WithDescription("Total connect attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Fragments, err = m.Int64Counter("sprachcoach.fragments",
		metric.WithDescription("Total transcript fragments by direction."),
	); err != nil {
		return nil, err
	}
	if met.BlocksSent, err = m.Int64Counter("sprachcoach.blocks.sent",
		metric.WithDescription("Audio blocks forwarded to the live session."),
	); err != nil {
		return nil, err
	}
	if met.BlocksDroppedStale, err = m.Int64Counter("sprachcoach.blocks.dropped_stale",
		metric.WithDescription("Audio blocks dropped due to a stale session generation."),
	); err != nil {
		return nil, err
	}
	if met.TurnsFinalized, err = m.Int64Counter("sprachcoach.turns.finalized",
		metric.WithDescription("Turns finalized and dispatched for analysis."),
	); err != nil {
		return nil, err
	}
	if met.TurnsDiscarded, err = m.Int64Counter("sprachcoach.turns.discarded",
		metric.WithDescription("Turns discarded without analysis."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisErrors, err = m.Int64Counter("sprachcoach.analysis.errors",
		metric.WithDescription("Failed one-shot analysis calls."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("sprachcoach.active_sessions",
		metric.WithDescription("Number of open live sessions."),
	); err != nil {
		return nil, err
	}
	if met.UIClients, err = m.Int64UpDownCounter("sprachcoach.ui_clients",
		metric.WithDescription("Connected UI WebSocket clients."),
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

// RecordConnect records a connect attempt with its outcome status.
func (m *Metrics) RecordConnect(ctx context.Context, status string) {
	m.SessionConnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordFragment records one received transcript fragment.
func (m *Metrics) RecordFragment(ctx context.Context, direction string) {
	m.Fragments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}
