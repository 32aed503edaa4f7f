package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer swaps the global tracer provider for one backed by an
// in-memory exporter. Tests here therefore cannot run in parallel.
func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	return exp
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}
}

func TestTraceID_MatchesActiveSpan(t *testing.T) {
	withTestTracer(t)

	ctx, span := startSpan(context.Background(), "voice turn")
	defer span.End()

	id := TraceID(ctx)
	if len(id) != 32 {
		t.Fatalf("trace id = %q, want 32 hex chars", id)
	}
	if want := span.SpanContext().TraceID().String(); id != want {
		t.Errorf("TraceID = %q, span reports %q", id, want)
	}
}

func TestStartSpan_UsesSibylScope(t *testing.T) {
	exp := withTestTracer(t)

	_, span := startSpan(context.Background(), "chat turn")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "chat turn" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "chat turn")
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("instrumentation scope = %q, want %q", got, tracerName)
	}
}
