package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/somatic"

// Tracer returns the tracer of the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartCompletion starts the span around one facilitator reply for the
// given session. provider is the configured LLM name.
func StartCompletion(ctx context.Context, sessionID, provider string) (context.Context, trace.Span) {
	return StartSpan(ctx, "facilitator.complete",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("llm.provider", provider),
		),
	)
}

// MarkFallback flags span as having answered with the fallback line. err
// may be nil when the model returned an empty reply.
func MarkFallback(span trace.Span, err error) {
	span.SetAttributes(attribute.Bool("facilitator.fallback", true))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// CorrelationID returns the trace id of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
