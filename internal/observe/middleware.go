package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseRecorder captures what the wrapped handler wrote. The chat
// surface streams NDJSON, so bytes accumulate over many Write calls.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Unwrap lets [http.ResponseController] reach the underlying writer. The
// chat surface depends on this for per-line flushing of streamed NDJSON
// and for the websocket upgrade.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware instruments one of Sibyl's HTTP surfaces. Every request gets a
// server span (honouring incoming W3C trace context), an X-Trace-ID response
// header the caller can quote back, a sample in
// [Metrics.HTTPRequestDuration] and a completion log line. surface names the
// listener the mux hangs off, "chat" or "admin", and is attached to the
// span, the metric sample and the log line so the surfaces can be told
// apart in one dashboard. The voice listener speaks its own framed
// protocol and is instrumented in the voice package instead.
func Middleware(m *Metrics, surface string) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := startSpan(ctx, surface+" "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					Attr("surface", surface),
				),
			)
			defer span.End()

			id := TraceID(ctx)
			if id != "" {
				w.Header().Set("X-Trace-ID", id)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					Attr("surface", surface),
					Attr("method", r.Method),
					Attr("path", r.URL.Path),
				),
			)

			slog.LogAttrs(ctx, slog.LevelInfo, "http request",
				slog.String("surface", surface),
				slog.String("trace_id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}
