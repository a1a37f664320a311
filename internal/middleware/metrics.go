package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/jiaa-auth/internal/telemetry"
)

// Metrics records request count and latency per route pattern.
// A nil m disables recording.
func Metrics(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			m.HTTPRequest(routePattern(r), r.Method, strconv.Itoa(wrapped.statusCode), time.Since(start).Seconds())
		})
	}
}
