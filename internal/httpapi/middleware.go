package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"CatalogScanner/internal/metrics"
)

// responseWriter keeps the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics per route pattern so path values do
// not explode label cardinality.
func instrument(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		duration := time.Since(start)
		metrics.RecordRequest(r.Method, endpoint, rw.status, duration)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", duration)
	})
}
