package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps spawn requests per client IP with a fixed window.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      int           // requests per window
	window    time.Duration // window length
	whitelist map[string]struct{}
	now       func() time.Time
	logger    *slog.Logger

	blocked func()
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a rate limiter allowing 'rate' requests per 'window'.
// IPs in whitelist bypass the limiter.
func NewRateLimiter(rate int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}

	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		rate:      rate,
		window:    window,
		whitelist: wl,
		now:       time.Now,
		logger:    logger.With("component", "rate_limiter"),
	}
}

// OnBlocked registers a callback run for every rejected request.
func (rl *RateLimiter) OnBlocked(fn func()) {
	rl.blocked = fn
}

// Run evicts idle buckets until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, b := range rl.buckets {
		if now.Sub(b.lastReset) > rl.window*2 {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *RateLimiter) IsWhitelisted(ip string) bool {
	_, ok := rl.whitelist[ip]
	return ok
}

// Allow reports whether ip may make another request in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _ := rl.take(ip)
	return ok
}

// take consumes one request from ip's window. When the window is spent it
// returns how long until the window resets.
func (rl *RateLimiter) take(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[ip]

	if !exists || now.Sub(b.lastReset) > rl.window {
		rl.buckets[ip] = &bucket{
			tokens:    rl.rate - 1,
			lastReset: now,
		}
		if rl.rate > 0 {
			return true, 0
		}
		return false, rl.window
	}

	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	return false, b.lastReset.Add(rl.window).Sub(now)
}

// Admit applies the limiter to one request from ip. Whitelisted IPs always
// pass. A rejection is logged with source and counted via OnBlocked; the
// returned duration is the time left in ip's window.
func (rl *RateLimiter) Admit(ip, source string) (bool, time.Duration) {
	if rl.IsWhitelisted(ip) {
		return true, 0
	}
	ok, wait := rl.take(ip)
	if !ok {
		rl.logger.Warn("rate limit exceeded", "ip", ip, "source", source, "retry_after", wait)
		if rl.blocked != nil {
			rl.blocked()
		}
	}
	return ok, wait
}

// Middleware rejects over-limit requests with 429 and a Retry-After header
// rounded up to whole seconds.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Admit(ClientIP(r), r.URL.Path)
		if !ok {
			retry := int(math.Ceil(wait.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many spawn requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP resolves the caller's address, honouring reverse proxy headers.
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Stats returns current rate limiter statistics
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"tracked_ips":       len(rl.buckets),
		"rate_per_window":   rl.rate,
		"window_seconds":    rl.window.Seconds(),
		"whitelist_entries": len(rl.whitelist),
	}
}
