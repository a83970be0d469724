package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
)

// Rate limit presets per route class.
var (
	// LimitAuth covers authentication-adjacent routes: 10 requests / 15 min.
	LimitAuth = RateLimit{Requests: 10, Per: 15 * time.Minute}
	// LimitWrite covers mutating routes: 60 requests / min.
	LimitWrite = RateLimit{Requests: 60, Per: time.Minute}
	// LimitRead covers read routes: 300 requests / min.
	LimitRead = RateLimit{Requests: 300, Per: time.Minute}
)

// RateLimit describes a request budget per window.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

// windowEntry tracks one client's current fixed window.
type windowEntry struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// RateLimiter applies a per-client-IP fixed window: at most Requests are
// admitted between a window's start and its end, and the counter only resets
// once the window has fully elapsed. A refilling token bucket would admit up
// to twice the budget inside a single window, so the accounting is a plain
// counter. Counters live in process memory; behind a multi-replica deployment
// each replica enforces its own budget.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*windowEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a limiter for the given preset and starts its idle
// entry reaper.
func NewRateLimiter(rl RateLimit) *RateLimiter {
	l := &RateLimiter{
		clients: make(map[string]*windowEntry),
		max:     rl.Requests,
		window:  rl.Per,
		now:     time.Now,
	}
	go l.reap()
	return l
}

// take consumes one slot for the key. It reports whether the request is
// admitted, the budget left in the window, and the window's end.
func (l *RateLimiter) take(key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.clients[key]
	if !ok {
		entry = &windowEntry{windowStart: now}
		l.clients[key] = entry
	}
	entry.lastSeen = now

	if now.Sub(entry.windowStart) >= l.window {
		entry.windowStart = now
		entry.count = 0
	}
	reset := entry.windowStart.Add(l.window)

	if entry.count >= l.max {
		return false, 0, reset
	}
	entry.count++
	return true, l.max - entry.count, reset
}

// Allow reports whether the key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	ok, _, _ := l.take(key)
	return ok
}

// Remaining returns the budget left in the key's current window without
// consuming any of it.
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[key]
	if !ok || l.now().Sub(entry.windowStart) >= l.window {
		return l.max
	}
	n := l.max - entry.count
	if n < 0 {
		n = 0
	}
	return n
}

// reap drops entries idle for longer than three windows.
func (l *RateLimiter) reap() {
	interval := l.window
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := l.now().Add(-3 * l.window)
		l.mu.Lock()
		for key, entry := range l.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(l.clients, key)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware returns a gin middleware enforcing the limiter keyed by client IP.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ClientIP(c.Request)

		allowed, remaining, reset := l.take(key)
		if !allowed {
			retryAfter := int((reset.Sub(l.now()) + time.Second - 1) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			appErr := apperrors.RateLimited("rate limit exceeded")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}

// ClientIP derives the rate-limit key: the first well-formed address in
// X-Forwarded-For, then X-Real-IP, then the connection remote address, and
// finally the sentinel "unknown".
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for _, part := range strings.Split(fwd, ",") {
			candidate := strings.TrimSpace(part)
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		if net.ParseIP(real) != nil {
			return real
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}
