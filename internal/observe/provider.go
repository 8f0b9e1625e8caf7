package observe

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryConfig describes the process being instrumented.
type TelemetryConfig struct {
	// Version is reported as service.version.
	Version string

	// Provider is the configured live provider, reported as jarvis.provider
	// on every exported series and span.
	Provider string

	// Registerer receives the Prometheus collector. Nil means
	// [prometheus.DefaultRegisterer], which promhttp.Handler serves.
	Registerer prometheus.Registerer

	// SpanExporter receives session spans. Nil keeps spans in-process only.
	SpanExporter sdktrace.SpanExporter
}

// Telemetry owns the SDK providers installed as the OTel globals.
type Telemetry struct {
	Meters  *sdkmetric.MeterProvider
	Tracers *sdktrace.TracerProvider
}

// NewTelemetry builds the meter and tracer providers for the client and
// registers them globally so [DefaultMetrics] and [NewSessionTracer] pick
// them up. Call [Telemetry.Shutdown] before exit to flush exporters.
func NewTelemetry(cfg TelemetryConfig) (*Telemetry, error) {
	// Schemaless so the merge never conflicts with the SDK's default schema.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName("jarvis"),
			semconv.ServiceVersion(cfg.Version),
			ProviderKey.String(cfg.Provider),
		),
	)
	if err != nil {
		return nil, err
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}

	tel := &Telemetry{
		Meters:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExp)),
		Tracers: sdktrace.NewTracerProvider(tpOpts...),
	}
	otel.SetMeterProvider(tel.Meters)
	otel.SetTracerProvider(tel.Tracers)
	return tel, nil
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracers.Shutdown(ctx), t.Meters.Shutdown(ctx))
}
