package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseCapture wraps [http.ResponseWriter] to observe the status code the
// handler wrote. WriteHeader may never be called; the zero capture reads as
// 200 because net/http writes an implicit 200 on first Write.
type responseCapture struct {
	http.ResponseWriter
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

// routePattern returns the ServeMux pattern that matched the request, e.g.
// "GET /v1/transcripts/{id}". It falls back to the raw URL path for requests
// that never hit a registered pattern, such as mux 404s.
func routePattern(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// Middleware instruments every request passing through the wrapped handler:
// it joins an incoming W3C trace context (or starts a fresh trace), surfaces
// the trace ID to the client via X-Correlation-ID, records the request
// duration to [Metrics.HTTPRequestDuration] under low-cardinality method and
// route attributes, and logs a completion line that correlates with the
// pipeline's job logs through the shared trace ID.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+routePattern(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			// Clients quote the correlation ID when reporting stuck memos,
			// so it goes out on every response, including errors.
			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			// The mux sets r.Pattern on this request during matching, so the
			// pointer is kept to read the route back after serving.
			r = r.WithContext(ctx)
			rec := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The route is only known once the mux has matched, so the span
			// starts under the raw path and is renamed here.
			route := routePattern(r)
			span.SetName("HTTP " + r.Method + " " + route)
			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

			slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
			)
		})
	}
}
