package middleware

import (
	"net/http"
	"time"

	"showcatalog/internal/observability"
)

// MetricsMiddleware records request counts, latency and in-flight requests
// under a fixed route label. A nil metrics value disables recording.
func MetricsMiddleware(metrics *observability.CatalogMetrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			metrics.RecordRequest(ctx, route, r.Method, wrapped.status, time.Since(start))
		})
	}
}
