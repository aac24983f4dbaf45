// Package observe provides observability primitives for the Voise connector:
// OpenTelemetry metrics and the SDK provider setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all connector metrics.
const meterName = "github.com/tomferreira/voise-asterisk-module"

// Metrics holds all OpenTelemetry metric instruments for the connector.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognitionDuration tracks wall-clock time from streaming start to the
	// terminal response, per completed recognition attempt.
	RecognitionDuration metric.Float64Histogram

	// SpeechDetectLatency tracks time from streaming start until the session
	// flagged heard-speech.
	SpeechDetectLatency metric.Float64Histogram

	// SynthDuration tracks wall-clock time of a full synthesis playback.
	SynthDuration metric.Float64Histogram

	// ChunksStreamed counts audio chunks forwarded to the recognizer.
	ChunksStreamed metric.Int64Counter

	// Completions counts completed recognition attempts. Use with attribute:
	//   attribute.String("reason", ...) — initial_silence, trailing_silence,
	//   absolute_timeout.
	Completions metric.Int64Counter

	// ProtocolErrors counts failed exchanges with the recognizer. Use with
	// attribute: attribute.String("op", ...).
	ProtocolErrors metric.Int64Counter

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// utterance-scale durations.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("voise.recognition.duration",
		metric.WithDescription("Wall-clock duration of a recognition attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDetectLatency, err = m.Float64Histogram("voise.speech_detect.latency",
		metric.WithDescription("Time from streaming start to first detected speech."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthDuration, err = m.Float64Histogram("voise.synthesis.duration",
		metric.WithDescription("Wall-clock duration of a synthesis playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ChunksStreamed, err = m.Int64Counter("voise.audio.chunks_streamed",
		metric.WithDescription("Audio chunks forwarded to the recognizer."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("voise.recognition.completions",
		metric.WithDescription("Completed recognition attempts by completion reason."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("voise.protocol.errors",
		metric.WithDescription("Failed protocol exchanges by operation."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voise.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
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

// RecordCompletion is a convenience method that counts one completed
// recognition attempt by reason.
func (m *Metrics) RecordCompletion(ctx context.Context, reason string) {
	m.Completions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProtocolError is a convenience method that counts one failed protocol
// exchange by operation.
func (m *Metrics) RecordProtocolError(ctx context.Context, op string) {
	m.ProtocolErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
