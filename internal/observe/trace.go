package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/mockvox"

// Span attribute keys shared by the protocol and resilience layers.
const (
	AttrMessageType   = attribute.Key("mockvox.message.type")
	AttrSessionID     = attribute.Key("mockvox.session.id")
	AttrErrorCode     = attribute.Key("mockvox.error.code")
	AttrProviderKind  = attribute.Key("mockvox.provider.kind")
	AttrProviderName  = attribute.Key("mockvox.provider.name")
	AttrProviderState = attribute.Key("mockvox.provider.outcome")
)

// Tracer returns the mockvox tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartMessageSpan starts the span covering one inbound control message.
// The dispatcher renames it once the message type is known.
func StartMessageSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "protocol.message", trace.WithSpanKind(trace.SpanKindServer))
}

// StartProviderSpan starts the span covering one collaborator call, named
// after its kind (llm.call, stt.call, tts.call).
func StartProviderSpan(ctx context.Context, kind, provider string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, kind+".call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrProviderKind.String(kind),
			AttrProviderName.String(provider),
		),
	)
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace id carried by ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithTrace returns l with trace_id and span_id attributes when ctx carries a
// valid span context, and l unchanged otherwise.
func WithTrace(l *slog.Logger, ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
