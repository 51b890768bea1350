package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting keyed by client IP.
// Counters live in process; a chat node fronts its own sessions, so
// there is no shared state to coordinate.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*window
	limits    map[string]RateLimit
	logger    zerolog.Logger
	lastSweep time.Time
}

// sweepInterval bounds how often expired windows are pruned.
const sweepInterval = time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a rate limiter with per-endpoint limits.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*window),
		logger:    logger,
		lastSweep: time.Now(),
		limits: map[string]RateLimit{
			"POST /api/chat/join":     {30, time.Minute},
			"POST /api/messages/send": {120, time.Minute},
			"GET /api/messages/poll":  {600, time.Minute},
		},
	}
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// allow checks and increments the counter for one key.
func (rl *RateLimiter) allow(key string, limit RateLimit) (bool, int, time.Time) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Drop expired windows so one-off callers don't accumulate forever.
	if now.Sub(rl.lastSweep) >= sweepInterval {
		for k, w := range rl.buckets {
			if now.After(w.resetAt) {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	w, ok := rl.buckets[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(limit.Window)}
		rl.buckets[key] = w
	}

	allowed := w.count < limit.Requests
	if allowed {
		w.count++
	}

	remaining := limit.Requests - w.count
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, w.resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, ok := rl.limits[r.Method+" "+r.URL.Path]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := RealIP(r)
		allowed, remaining, resetAt := rl.allow(ip+" "+r.URL.Path, limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))

			rl.logger.Warn().
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
