package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const msgTooManyRequests = "Too many bad request, try again later."

// RateLimiter is a fixed-window counter per resource and client IP kept in
// Redis. Every request runs INCR and EXPIRE NX in one transaction, so a
// counter always carries an expiry and disappears when the window ends.
//
// A nil client or a Redis failure lets the request through.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Allow counts one request for id against resource and reports whether it
// is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string) (bool, error) {
	if l.rdb == nil || l.limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("ratelimit: counting %s: %w", key, err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// Limit returns middleware enforcing the limit for resource, keyed by the
// client IP. It must run after chimiddleware.RealIP.
func (l *RateLimiter) Limit(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, err := l.Allow(r.Context(), resource, ip)
			if err != nil {
				l.logger.Warn("rate limit unavailable, allowing request",
					slog.String("resource", resource),
					slog.String("error", err.Error()),
				)
			}
			if !allowed {
				l.logger.Info("rate limit exceeded",
					slog.String("resource", resource),
					slog.String("ip", ip),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": msgTooManyRequests,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr when there is one.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
