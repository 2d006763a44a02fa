package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"
)

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(client string) bool
}

// RateLimit rejects requests with 429 once the client's budget is spent.
// Clients are identified by remote IP.
func RateLimit(limiter Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)
			if !limiter.Allow(client) {
				LoggerFromRequest(r, logger).Warn("rate limited", zap.String("client", client))
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
