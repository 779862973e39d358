// Package observe provides application-wide observability primitives for
// Mallard: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mallard-ai/mallard/pkg/realtime"
)

// meterName is the instrumentation scope name used for all Mallard metrics.
const meterName = "github.com/mallard-ai/mallard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per provider kind ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks chat completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// VisionDuration tracks video analysis latency.
	VisionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// FramesSent counts video frames sent to the realtime service.
	FramesSent metric.Int64Counter

	// FrameBytes counts total JPEG bytes sent to the realtime service.
	FrameBytes metric.Int64Counter

	// AudioChunksSent counts audio chunks sent to the realtime service.
	AudioChunksSent metric.Int64Counter

	// RealtimeEvents counts events received from the realtime service. Use
	// with attribute: attribute.String("type", ...)
	RealtimeEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveRealtimeSessions tracks the number of live realtime sessions.
	ActiveRealtimeSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// Metrics doubles as the counter sink for the realtime controller.
var _ realtime.Stats = (*Metrics)(nil)

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
	if met.STTDuration, err = m.Float64Histogram("mallard.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("mallard.llm.duration",
		metric.WithDescription("Latency of chat completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("mallard.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VisionDuration, err = m.Float64Histogram("mallard.vision.duration",
		metric.WithDescription("Latency of video analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("mallard.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("mallard.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("mallard.realtime.frames_sent",
		metric.WithDescription("Total video frames sent to the realtime service."),
	); err != nil {
		return nil, err
	}
	if met.FrameBytes, err = m.Int64Counter("mallard.realtime.frame_bytes",
		metric.WithDescription("Total JPEG bytes sent to the realtime service."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksSent, err = m.Int64Counter("mallard.realtime.audio_chunks_sent",
		metric.WithDescription("Total audio chunks sent to the realtime service."),
	); err != nil {
		return nil, err
	}
	if met.RealtimeEvents, err = m.Int64Counter("mallard.realtime.events_received",
		metric.WithDescription("Total realtime service events received by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRealtimeSessions, err = m.Int64UpDownCounter("mallard.realtime.active_sessions",
		metric.WithDescription("Number of live realtime sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mallard.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// FrameSent implements [realtime.Stats].
func (m *Metrics) FrameSent(bytes int) {
	ctx := context.Background()
	m.FramesSent.Add(ctx, 1)
	m.FrameBytes.Add(ctx, int64(bytes))
}

// AudioChunkSent implements [realtime.Stats].
func (m *Metrics) AudioChunkSent() {
	m.AudioChunksSent.Add(context.Background(), 1)
}

// EventReceived implements [realtime.Stats].
func (m *Metrics) EventReceived(eventType string) {
	m.RealtimeEvents.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// SessionStarted increments the active realtime session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveRealtimeSessions.Add(ctx, 1)
}

// SessionEnded decrements the active realtime session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveRealtimeSessions.Add(ctx, -1)
}
