// Package observe provides the application's observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge so the device
// fleet can be scraped via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ipavlek/sonara"

// Metrics holds all OpenTelemetry metric instruments for the voice session
// orchestrator. All fields are safe for concurrent use — the underlying
// OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SessionDuration tracks wake-to-response session length.
	SessionDuration metric.Float64Histogram

	// RunRoundTrip tracks time from end-of-audio to the backend's run-end.
	RunRoundTrip metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-phrase detections. Use with attribute:
	//   attribute.String("outcome", "accepted"|"debounced")
	WakeDetections metric.Int64Counter

	// CommandsDropped counts orchestrator commands dropped because the
	// queue was full.
	CommandsDropped metric.Int64Counter

	// LocalShortcuts counts intents satisfied by the on-device resolver
	// without a backend round trip.
	LocalShortcuts metric.Int64Counter

	// BackendErrors counts backend error events and transport failures.
	// Use with attribute: attribute.String("kind", "event"|"transport"|"auth")
	BackendErrors metric.Int64Counter

	// ArbiterTimeouts counts stop-and-wait timeouts on the audio path.
	ArbiterTimeouts metric.Int64Counter

	// --- Gauges ---

	// ActiveSession is 1 while a wake-to-response session is in flight.
	ActiveSession metric.Int64UpDownCounter

	// QueueDepth tracks the orchestrator command queue backlog.
	QueueDepth metric.Int64UpDownCounter

	// ActiveTimers tracks running local countdowns.
	ActiveTimers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice interaction latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionDuration, err = m.Float64Histogram("sonara.session.duration",
		metric.WithDescription("Wake-to-response session length."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunRoundTrip, err = m.Float64Histogram("sonara.run.round_trip",
		metric.WithDescription("End-of-audio to run-end backend latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.WakeDetections, err = m.Int64Counter("sonara.wake.detections",
		metric.WithDescription("Wake-phrase detections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CommandsDropped, err = m.Int64Counter("sonara.commands.dropped",
		metric.WithDescription("Orchestrator commands dropped due to a full queue."),
	); err != nil {
		return nil, err
	}
	if met.LocalShortcuts, err = m.Int64Counter("sonara.intent.local_shortcuts",
		metric.WithDescription("Intents satisfied locally without a backend round trip."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("sonara.backend.errors",
		metric.WithDescription("Backend error events and transport failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.ArbiterTimeouts, err = m.Int64Counter("sonara.audio.arbiter_timeouts",
		metric.WithDescription("Stop-and-wait timeouts on the audio path."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSession, err = m.Int64UpDownCounter("sonara.session.active",
		metric.WithDescription("Whether a voice session is currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("sonara.queue.depth",
		metric.WithDescription("Orchestrator command queue backlog."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTimers, err = m.Int64UpDownCounter("sonara.timers.active",
		metric.WithDescription("Running local countdown timers."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordBackendError increments the backend error counter with the standard
// kind attribute.
func (m *Metrics) RecordBackendError(ctx context.Context, kind string) {
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordWakeDetection increments the wake detection counter with the
// standard outcome attribute.
func (m *Metrics) RecordWakeDetection(ctx context.Context, outcome string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
