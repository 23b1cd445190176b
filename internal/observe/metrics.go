// Package observe provides the metrics collaborator injected into the
// analysis engine. Instruments are recorded through the OpenTelemetry
// Metrics API; tests should build a [Metrics] with [NewMetrics] over a
// ManualReader-backed provider.
package observe

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all voice-metrics instruments
const meterName = "github.com/RyanBlaney/voice-metrics"

// Metrics holds the engine instruments. All fields are safe for concurrent use.
type Metrics struct {
	// FramesProcessed counts frames passed through the QC gate. Attribute: task
	FramesProcessed metric.Int64Counter

	// QCFlags counts flags raised by the QC gate and ordering validator. Attribute: flag
	QCFlags metric.Int64Counter

	// WindowFallbacks counts recordings summarized over all frames because no
	// window reached the minimum frame count. Attribute: task
	WindowFallbacks metric.Int64Counter

	// Unavailable counts results reported without a value. Attributes: component, reason
	Unavailable metric.Int64Counter

	// RecordingDuration tracks per-recording analysis time. Attribute: task
	RecordingDuration metric.Float64Histogram

	// ActiveRecordings tracks recordings currently being analyzed
	ActiveRecordings metric.Int64UpDownCounter
}

// durationBuckets are bucket boundaries in seconds for in-memory frame analysis
var durationBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates every instrument from mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("voice.frames.processed",
		metric.WithDescription("Frames passed through the QC gate by task."),
	); err != nil {
		return nil, err
	}
	if met.QCFlags, err = m.Int64Counter("voice.qc.flags",
		metric.WithDescription("QC and ordering flags raised by flag name."),
	); err != nil {
		return nil, err
	}
	if met.WindowFallbacks, err = m.Int64Counter("voice.window.fallbacks",
		metric.WithDescription("Recordings summarized over all frames by task."),
	); err != nil {
		return nil, err
	}
	if met.Unavailable, err = m.Int64Counter("voice.results.unavailable",
		metric.WithDescription("Results reported unavailable by component and reason."),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("voice.recording.duration",
		metric.WithDescription("Per-recording analysis time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voice.recordings.active",
		metric.WithDescription("Recordings currently being analyzed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance built on the global
// provider. Panics if instrument creation fails.
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

// NewNopMetrics returns instruments that record nothing
func NewNopMetrics() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: failed to create nop metrics: " + err.Error())
	}
	return met
}

// RecordFrames counts n frames for task
func (m *Metrics) RecordFrames(ctx context.Context, task string, n int) {
	m.FramesProcessed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("task", task)))
}

// RecordFlags adds every flag count. Flags are recorded in name order.
func (m *Metrics) RecordFlags(ctx context.Context, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.QCFlags.Add(ctx, int64(counts[name]), metric.WithAttributes(attribute.String("flag", name)))
	}
}

// RecordFallback counts a whole-recording window fallback
func (m *Metrics) RecordFallback(ctx context.Context, task string) {
	m.WindowFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

// RecordUnavailable counts an unavailable result
func (m *Metrics) RecordUnavailable(ctx context.Context, component, reason string) {
	m.Unavailable.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("reason", reason),
	))
}

// StartRecording marks a recording active and returns a func that records
// its duration and marks it done
func (m *Metrics) StartRecording(ctx context.Context, task string) func() {
	start := time.Now()
	m.ActiveRecordings.Add(ctx, 1)
	return func() {
		m.ActiveRecordings.Add(ctx, -1)
		m.RecordingDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("task", task)))
	}
}
