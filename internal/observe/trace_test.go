package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTestTracer installs a synchronous in-memory tracer provider as the
// global one for the duration of the test. Callers must not run in parallel.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func attrOf(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartProviderSpan(t *testing.T) {
	exp := useTestTracer(t)

	for _, kind := range []string{KindLLM, KindSTT, KindTTS} {
		_, span := StartProviderSpan(context.Background(), kind, "openai")
		EndSpan(span, nil)
	}

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("spans = %d, want 3", len(spans))
	}
	for i, want := range []string{"llm.call", "stt.call", "tts.call"} {
		s := spans[i]
		if s.Name != want {
			t.Errorf("span %d name = %q, want %q", i, s.Name, want)
		}
		if s.SpanKind != trace.SpanKindClient {
			t.Errorf("span %d kind = %v, want client", i, s.SpanKind)
		}
		if v, _ := attrOf(s, AttrProviderName); v.AsString() != "openai" {
			t.Errorf("span %d provider = %q, want openai", i, v.AsString())
		}
		if v, _ := attrOf(s, AttrProviderKind); v.AsString()+".call" != want {
			t.Errorf("span %d kind attribute = %q", i, v.AsString())
		}
	}
}

func TestEndSpan(t *testing.T) {
	exp := useTestTracer(t)

	_, ok := StartMessageSpan(context.Background())
	EndSpan(ok, nil)
	_, failed := StartMessageSpan(context.Background())
	EndSpan(failed, errors.New("transcriber unavailable"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("successful span status = %v, want unset", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "transcriber unavailable" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) != 1 {
		t.Errorf("failed span events = %d, want the recorded error", len(spans[1].Events))
	}
	if spans[0].Name != "protocol.message" || spans[0].SpanKind != trace.SpanKindServer {
		t.Errorf("message span = %q/%v", spans[0].Name, spans[0].SpanKind)
	}
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	ctx, span := StartMessageSpan(context.Background())
	defer span.End()
	want := span.SpanContext().TraceID().String()
	if got := CorrelationID(ctx); got != want || len(got) != 32 {
		t.Errorf("CorrelationID = %q, want %q", got, want)
	}
}

func TestWithTrace(t *testing.T) {
	useTestTracer(t)
	traced, span := StartProviderSpan(context.Background(), KindLLM, "stub")
	defer span.End()

	tests := []struct {
		name string
		ctx  context.Context
		want bool
	}{
		{name: "span in context", ctx: traced, want: true},
		{name: "no span", ctx: context.Background(), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := WithTrace(slog.New(slog.NewTextHandler(&buf, nil)), tt.ctx)
			l.Info("turn complete")

			out := buf.String()
			if got := strings.Contains(out, "trace_id=") && strings.Contains(out, "span_id="); got != tt.want {
				t.Errorf("trace attributes present = %v, want %v: %s", got, tt.want, out)
			}
		})
	}
}
