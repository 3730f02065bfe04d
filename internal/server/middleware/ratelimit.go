package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// rateLimitKeyPrefix scopes API traffic apart from the poller's source
// budget inside the shared limiter backend.
const rateLimitKeyPrefix = "api:"

// RateLimit caps requests per client IP using the shared limiter backend.
// When the backend errors the request is let through: losing Redis should
// degrade the API to unlimited, not to unavailable.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(max(window/time.Second, 1)))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKeyPrefix + clientIP(r)

			ok, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil || ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", retryAfter)
			deny(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}

// clientIP resolves the caller's address, trusting proxy headers first: the
// leftmost X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
