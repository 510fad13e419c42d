package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"youthexchange/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (n int, err error) {
	n, err = w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Flush lets event streams push through the wrapper.
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// LoggingMiddleware logs each request with method, path, status, and duration, and records it
// in m under the matched route pattern. It does not log request or response bodies, and never
// logs query strings since guest links carry invite tokens there.
func LoggingMiddleware(logger *slog.Logger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)
		path := r.URL.Path
		if r.Pattern != "" {
			path = r.Pattern
		}
		logger.Info("request",
			"method", r.Method,
			"path", path,
			"status", wrapped.status,
			"duration_ms", duration.Milliseconds(),
		)
		m.ObserveRequest(r.Method, r.Pattern, wrapped.status, start)
	})
}
