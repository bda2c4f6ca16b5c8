package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/provio-systems/provio/internal/ratelimit"
	"github.com/provio-systems/provio/pkg/httputil"
	"github.com/provio-systems/provio/pkg/logging"
)

// RateLimit rejects requests exceeding the per-client window with 429.
// A limiter backend error fails open: provisioning availability wins
// over strict enforcement.
func RateLimit(limiter ratelimit.Limiter, rejects prometheus.Counter, logger *logging.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			clientIP := httputil.GetClientIP(r)

			allowed, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					"client_ip", clientIP, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if rejects != nil {
					rejects.Inc()
				}
				httputil.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED",
					"too many provisioning requests, retry later")
				return
			}

			next.ServeHTTP(w, r)
		}
	}
}
