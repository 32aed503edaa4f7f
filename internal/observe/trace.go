package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for spans started by this package.
const tracerName = "github.com/voxhollow/sibyl"

// startSpan opens a span on the globally registered tracer provider.
func startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// TraceID returns the hex trace id of the span active in ctx, or the empty
// string when there is none. The HTTP surfaces echo it as X-Trace-ID so a
// caller can quote the id from a failed request back into the trace store.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
