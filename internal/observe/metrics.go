// Package observe carries the client's telemetry: OpenTelemetry metric
// instruments for the audio and session paths, spans for live session
// lifecycle, and timing for the observability endpoints.
//
// [NewTelemetry] installs the SDK providers and bridges metrics to
// Prometheus. [DefaultMetrics] binds to the global meter provider; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/jarvis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ConnectDuration tracks how long opening a live session takes, from the
	// user's call to action until the server accepts the setup.
	ConnectDuration metric.Float64Histogram

	// AudioBlocks counts captured microphone blocks. Use with attribute:
	//   attribute.String("status", "sent"|"dropped_detached"|"dropped_full"|"send_error")
	AudioBlocks metric.Int64Counter

	// PlaybackChunks counts inbound audio chunks. Use with attribute:
	//   attribute.String("status", "scheduled"|"malformed")
	PlaybackChunks metric.Int64Counter

	// Interruptions counts barge-in events that flushed queued playback.
	Interruptions metric.Int64Counter

	// Turns counts completed conversational turns.
	Turns metric.Int64Counter

	// TransportErrors counts live transport failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", "open"|"runtime")
	TransportErrors metric.Int64Counter

	// StateTransitions counts session state changes by target state.
	StateTransitions metric.Int64Counter

	// BreakerTransitions counts provider circuit breaker changes. Use with
	// attributes: attribute.String("provider", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// ActiveSessions tracks the number of live sessions (0 or 1 per process).
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks observability endpoint latency. Use with
	// attributes: attribute.String("route", ...), attribute.Int("code", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// connectBuckets defines histogram bucket boundaries (in seconds) for session
// setup, which spans a TLS handshake and a model warm-up.
var connectBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("jarvis.session.connect.duration",
		metric.WithDescription("Latency of opening a live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(connectBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AudioBlocks, err = m.Int64Counter("jarvis.capture.blocks",
		metric.WithDescription("Captured microphone blocks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("jarvis.playback.chunks",
		metric.WithDescription("Inbound audio chunks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("jarvis.playback.interruptions",
		metric.WithDescription("Barge-in events that flushed queued playback."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("jarvis.session.turns",
		metric.WithDescription("Completed conversational turns."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("jarvis.transport.errors",
		metric.WithDescription("Live transport failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("jarvis.session.transitions",
		metric.WithDescription("Session state changes by target state."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("jarvis.provider.breaker.transitions",
		metric.WithDescription("Provider circuit breaker changes by target state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("jarvis.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
		metric.WithDescription("Observability endpoint latency by route and status code."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAudioBlock records the outcome of one captured block.
func (m *Metrics) RecordAudioBlock(ctx context.Context, status string) {
	m.AudioBlocks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPlaybackChunk records the outcome of one inbound audio chunk.
func (m *Metrics) RecordPlaybackChunk(ctx context.Context, status string) {
	m.PlaybackChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordInterruption records a barge-in and how many voices it stopped.
func (m *Metrics) RecordInterruption(ctx context.Context, stopped int) {
	m.Interruptions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("had_audio", stopped > 0)))
}

// RecordTurn records a completed turn.
func (m *Metrics) RecordTurn(ctx context.Context) {
	m.Turns.Add(ctx, 1)
}

// RecordTransportError records a transport failure.
func (m *Metrics) RecordTransportError(ctx context.Context, provider, kind string) {
	m.TransportErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordStateTransition records a session state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordBreakerTransition records a provider circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}
