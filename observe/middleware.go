package observe

import (
	"net/http"
	"time"
)

// Middleware records and logs every HTTP request served.
//
// Contract:
//   - Concurrency: Handler() returns a thread-safe http.Handler.
//   - Ownership: requests and responses are passed through unmodified.
type Middleware struct {
	logger Logger
	stats  *RequestStats
}

// NewMiddleware creates a Middleware. stats may be nil.
func NewMiddleware(logger Logger, stats *RequestStats) *Middleware {
	return &Middleware{
		logger: logger.WithComponent("http"),
		stats:  stats,
	}
}

// Handler wraps next with request accounting and an access log entry.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		failed := rec.status >= http.StatusInternalServerError
		if m.stats != nil {
			m.stats.Record(duration, failed)
		}

		fields := []Field{
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: rec.status},
			{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
			{Key: "request_id", Value: r.Header.Get("X-Request-ID")},
		}
		if failed {
			m.logger.Warn(r.Context(), "http request", fields...)
		} else {
			m.logger.Info(r.Context(), "http request", fields...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
