// Package observe provides application-wide observability primitives for
// voicecore: OpenTelemetry metrics and the provider wiring behind them.
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

// meterName is the instrumentation scope name used for all voicecore metrics.
const meterName = "github.com/localbrain/voicecore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ProbeDuration tracks wake-probe transcription latency.
	ProbeDuration metric.Float64Histogram

	// RenderDuration tracks per-chunk playback render latency.
	RenderDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts accepted wake activations. Use with attribute:
	//   attribute.String("state", ...) — the gate state at activation time.
	WakeDetections metric.Int64Counter

	// ProbeErrors counts failed probe transcriptions.
	ProbeErrors metric.Int64Counter

	// SessionTransitions counts session state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	SessionTransitions metric.Int64Counter

	// PlaybackDrops counts audio chunks dropped due to backlog pressure.
	PlaybackDrops metric.Int64Counter

	// CaptureDrops counts capture frames dropped on a full ingest buffer.
	CaptureDrops metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live agent sessions (0 or 1 in the
	// single-session controller, kept as an UpDownCounter for scrape parity).
	ActiveSessions metric.Int64UpDownCounter
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
	if met.ProbeDuration, err = m.Float64Histogram("voicecore.probe.duration",
		metric.WithDescription("Latency of wake-probe transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderDuration, err = m.Float64Histogram("voicecore.playback.render.duration",
		metric.WithDescription("Latency of a single playback chunk render."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("voicecore.wake.detections",
		metric.WithDescription("Total accepted wake activations by gate state."),
	); err != nil {
		return nil, err
	}
	if met.ProbeErrors, err = m.Int64Counter("voicecore.probe.errors",
		metric.WithDescription("Total failed probe transcriptions."),
	); err != nil {
		return nil, err
	}
	if met.SessionTransitions, err = m.Int64Counter("voicecore.session.transitions",
		metric.WithDescription("Total session state transitions by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDrops, err = m.Int64Counter("voicecore.playback.drops",
		metric.WithDescription("Total playback chunks dropped due to backlog pressure."),
	); err != nil {
		return nil, err
	}
	if met.CaptureDrops, err = m.Int64Counter("voicecore.capture.drops",
		metric.WithDescription("Total capture frames dropped on a full ingest buffer."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicecore.active_sessions",
		metric.WithDescription("Number of live agent sessions."),
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

// RecordTransition records a session state transition counter increment with
// the standard attribute set.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.SessionTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordWakeDetection records an accepted wake activation.
func (m *Metrics) RecordWakeDetection(ctx context.Context, state string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}
