// Package observe provides application-wide observability primitives for
// voxdispatch: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxdispatch metrics.
const meterName = "github.com/fieldops/voxdispatch"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long backend session establishment takes.
	ConnectDuration metric.Float64Histogram

	// SessionDuration tracks total session lifetime from start to teardown.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts microphone frames delivered to the backend.
	FramesSent metric.Int64Counter

	// FramesMuted counts microphone frames suppressed by the half-duplex
	// muting rule while the assistant was speaking.
	FramesMuted metric.Int64Counter

	// FramesDropped counts microphone frames discarded because the outbound
	// send path was backpressured or the session was not active.
	FramesDropped metric.Int64Counter

	// AudioDeltas counts inbound synthesized-audio chunks enqueued for
	// playback.
	AudioDeltas metric.Int64Counter

	// TranscriptLines counts completed transcript lines. Use with attribute:
	//   attribute.String("speaker", ...)
	TranscriptLines metric.Int64Counter

	// --- Error counters ---

	// SessionErrors counts fatal session errors. Use with attribute:
	//   attribute.String("kind", ...)
	SessionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live dispatch sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for realtime-audio latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for whole
// session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("voxdispatch.connect.duration",
		metric.WithDescription("Latency of backend session establishment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxdispatch.session.duration",
		metric.WithDescription("Total session lifetime from start to teardown."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("voxdispatch.frames.sent",
		metric.WithDescription("Microphone frames delivered to the backend."),
	); err != nil {
		return nil, err
	}
	if met.FramesMuted, err = m.Int64Counter("voxdispatch.frames.muted",
		metric.WithDescription("Microphone frames suppressed while the assistant was speaking."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxdispatch.frames.dropped",
		metric.WithDescription("Microphone frames discarded due to backpressure or inactive session."),
	); err != nil {
		return nil, err
	}
	if met.AudioDeltas, err = m.Int64Counter("voxdispatch.audio.deltas",
		metric.WithDescription("Inbound synthesized-audio chunks enqueued for playback."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptLines, err = m.Int64Counter("voxdispatch.transcript.lines",
		metric.WithDescription("Completed transcript lines by speaker."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SessionErrors, err = m.Int64Counter("voxdispatch.session.errors",
		metric.WithDescription("Fatal session errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxdispatch.active_sessions",
		metric.WithDescription("Number of live dispatch sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxdispatch.http.request.duration",
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

// RecordTranscriptLine is a convenience method that records a transcript line
// counter increment with the speaker attribute.
func (m *Metrics) RecordTranscriptLine(ctx context.Context, speaker string) {
	m.TranscriptLines.Add(ctx, 1, metric.WithAttributes(Attr("speaker", speaker)))
}

// RecordSessionError is a convenience method that records a fatal session
// error counter increment with the kind attribute.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}
