package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests that no mux pattern claimed, so stray paths
// cannot grow the label set.
const unmatchedRoute = "unmatched"

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the observability mux. Each request is timed into
// [Metrics.HTTPRequestDuration] labelled by the matched route pattern and
// status code, then logged at debug level since scrapers poll constantly.
//
// Scrapes are not traced. The only spans this client emits belong to live
// sessions.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			// ServeMux records the matched pattern on the request it routes.
			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			m.HTTPRequestDuration.Record(r.Context(), elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("route", route),
					attribute.Int("code", rec.code),
				),
			)
			slog.LogAttrs(r.Context(), slog.LevelDebug, "observability request",
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.code),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
