package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
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

func TestCounterObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	counters := []struct {
		name string
		c    metric.Int64Counter
	}{
		{"sonara.wake.detections", m.WakeDetections},
		{"sonara.commands.dropped", m.CommandsDropped},
		{"sonara.intent.local_shortcuts", m.LocalShortcuts},
		{"sonara.backend.errors", m.BackendErrors},
		{"sonara.audio.arbiter_timeouts", m.ArbiterTimeouts},
	}

	for _, tc := range counters {
		tc.c.Add(ctx, 1)
		tc.c.Add(ctx, 2)
	}

	rm := collect(t, reader)
	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			found := findMetric(rm, tc.name)
			if found == nil {
				t.Fatalf("metric %q not collected", tc.name)
			}
			sum, ok := found.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q: data type %T, want Sum[int64]", tc.name, found.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			if total != 3 {
				t.Errorf("metric %q total = %d, want 3", tc.name, total)
			}
		})
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionDuration.Record(ctx, 1.5)
	m.RunRoundTrip.Record(ctx, 0.25)

	rm := collect(t, reader)
	for _, name := range []string{"sonara.session.duration", "sonara.run.round_trip"} {
		if findMetric(rm, name) == nil {
			t.Errorf("metric %q not collected", name)
		}
	}
}

func TestGaugeUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSession.Add(ctx, 1)
	m.QueueDepth.Add(ctx, 5)
	m.QueueDepth.Add(ctx, -2)

	rm := collect(t, reader)
	found := findMetric(rm, "sonara.queue.depth")
	if found == nil {
		t.Fatal("queue depth metric not collected")
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type %T, want Sum[int64]", found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("queue depth = %d, want 3", total)
	}
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBackendError(ctx, "transport")
	m.RecordWakeDetection(ctx, "accepted")
	m.RecordWakeDetection(ctx, "debounced")

	rm := collect(t, reader)
	if findMetric(rm, "sonara.backend.errors") == nil {
		t.Error("backend errors metric not collected")
	}
	wake := findMetric(rm, "sonara.wake.detections")
	if wake == nil {
		t.Fatal("wake detections metric not collected")
	}
	sum, ok := wake.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type %T, want Sum[int64]", wake.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("wake detection attribute sets = %d, want 2 (accepted, debounced)", len(sum.DataPoints))
	}
}
