package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pokepi/pokepi-server/internal/ratelimit"
)

// RateLimiter limits requests per client key.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter allows ratePerInterval requests per interval per key, with
// the given burst.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// rateLimitAuth is a huma middleware guarding the credential endpoints.
// It answers 429 when the client IP has used up its budget.
func (s *Server) rateLimitAuth(ctx huma.Context, next func(huma.Context)) {
	key := clientIP(ctx)
	if !s.authRateLimiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded",
			"ip", key,
			"path", ctx.URL().Path,
		)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}
	next(ctx)
}

// clientIP extracts the client IP, preferring X-Forwarded-For and X-Real-IP
// over the connection address.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}
	addr := ctx.RemoteAddr()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
