package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for session spans.
const tracerName = "github.com/MrWong99/jarvis/session"

// Span attribute keys shared by every session span.
const (
	ProviderKey = attribute.Key("jarvis.provider")
	ModelKey    = attribute.Key("jarvis.model")
	StateKey    = attribute.Key("jarvis.session.state")
)

// SessionTracer starts spans for the lifecycle of live sessions against one
// provider. The zero value is not usable; construct with [NewSessionTracer].
type SessionTracer struct {
	tracer   trace.Tracer
	provider string
}

// NewSessionTracer returns a tracer for sessions opened through provider. A
// nil tp uses the globally registered [trace.TracerProvider].
func NewSessionTracer(tp trace.TracerProvider, provider string) *SessionTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SessionTracer{tracer: tp.Tracer(tracerName), provider: provider}
}

// Start opens a "session.<op>" span tagged with the provider and model.
func (t *SessionTracer) Start(ctx context.Context, op, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "session."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			ProviderKey.String(t.provider),
			ModelKey.String(model),
		),
	)
}

// Finish records the state the session settled in and ends span. A non-nil
// err marks the span failed.
func (t *SessionTracer) Finish(span trace.Span, state string, err error) {
	span.SetAttributes(StateKey.String(state))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Logger returns the default logger tagged with the provider and, when ctx
// carries a recording span, its trace ID.
func (t *SessionTracer) Logger(ctx context.Context) *slog.Logger {
	l := slog.Default().With(slog.String("provider", t.provider))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(slog.String("trace_id", sc.TraceID().String()))
	}
	return l
}
