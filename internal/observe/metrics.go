// Package observe provides observability primitives for dialcore:
// OpenTelemetry metrics with a Prometheus exporter bridge, and a recorder
// that folds pipeline events into the instruments.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all dialcore metrics.
const meterName = "github.com/dialverse/dialcore"

// Metrics holds the OpenTelemetry instruments for the call pipeline. All
// fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text latency per utterance.
	TranscriptionDuration metric.Float64Histogram

	// DialogDuration tracks response-generation latency.
	DialogDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech latency per attempt.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksDelivered counts outbound audio chunks sent to customers.
	ChunksDelivered metric.Int64Counter

	// FramesDropped counts inbound frames evicted by backpressure.
	FramesDropped metric.Int64Counter

	// Interruptions counts barge-ins by call.
	Interruptions metric.Int64Counter

	// LanguageSwitches counts confirmed language switches. Use with
	// attributes: attribute.String("from", ...), attribute.String("to", ...)
	LanguageSwitches metric.Int64Counter

	// SynthesisFallbacks counts canned-audio deliveries. Use with
	// attribute.String("category", ...)
	SynthesisFallbacks metric.Int64Counter

	// ProviderRequests counts synthesis provider attempts. Use with
	// attributes: attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CallFailures counts calls torn down after exhausting recovery.
	CallFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveChannels tracks live call channels.
	ActiveChannels metric.Int64UpDownCounter
}

// latencyBuckets defines histogram boundaries (seconds) sized for
// conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("dialcore.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DialogDuration, err = m.Float64Histogram("dialcore.dialog.duration",
		metric.WithDescription("Latency of response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("dialcore.tts.duration",
		metric.WithDescription("Latency of speech synthesis attempts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksDelivered, err = m.Int64Counter("dialcore.channel.chunks_delivered",
		metric.WithDescription("Outbound audio chunks delivered to customers."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("dialcore.channel.frames_dropped",
		metric.WithDescription("Inbound frames dropped under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("dialcore.interruptions",
		metric.WithDescription("Customer barge-ins detected."),
	); err != nil {
		return nil, err
	}
	if met.LanguageSwitches, err = m.Int64Counter("dialcore.language.switches",
		metric.WithDescription("Confirmed conversation language switches by from and to."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisFallbacks, err = m.Int64Counter("dialcore.tts.fallbacks",
		metric.WithDescription("Canned fallback audio deliveries by failure category."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("dialcore.provider.requests",
		metric.WithDescription("Synthesis provider attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.CallFailures, err = m.Int64Counter("dialcore.call.failures",
		metric.WithDescription("Calls torn down after exhausting transport recovery."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveChannels, err = m.Int64UpDownCounter("dialcore.active_channels",
		metric.WithDescription("Number of live call audio channels."),
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
// on first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordProviderRequest records one synthesis provider attempt.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordSynthesis records one synthesis attempt's latency.
func (m *Metrics) RecordSynthesis(ctx context.Context, provider string, d time.Duration) {
	m.SynthesisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
