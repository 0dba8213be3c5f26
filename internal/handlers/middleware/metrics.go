package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pixelift/pixelift/internal/metrics"
)

type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

// MetricsMiddleware counts requests and observes latency
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			mw := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(mw, r)

			metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(mw.status)).Inc()
			metrics.RequestDuration.Observe(time.Since(start).Seconds())
		})
	}
}
