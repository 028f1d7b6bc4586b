package httpx

import (
	"net/http"

	"golang.org/x/time/rate"
)

// ThrottleMiddleware applies a server-wide throughput ceiling in front of the
// per-key policy limiters. It is a coarse overload guard, not an entitlement:
// the per-endpoint fixed-window limits still apply behind it.
func ThrottleMiddleware(requestsPerSecond float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests,
					"server_busy", "Service is handling too many requests. Please retry.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
