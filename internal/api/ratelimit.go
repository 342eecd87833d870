package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperBot/internal/logging"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	mu             sync.Mutex
	tokens         float64
	capacity       float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
}

func newTokenBucket(capacity, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:         capacity,
		capacity:       capacity,
		refillRate:     refillRate,
		lastRefillTime: now,
	}
}

// refillLocked must be called with tb.mu held.
func (tb *tokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	if elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefillTime = now
	}
}

// allow takes a token if one is available.
func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(now)
	if tb.tokens >= 1.0 {
		tb.tokens--
		return true
	}
	return false
}

// remaining returns the whole tokens left.
func (tb *tokenBucket) remaining(now time.Time) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(now)
	return int(tb.tokens)
}

// reset returns when the bucket will be full again.
func (tb *tokenBucket) reset(now time.Time) time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(now)
	if tb.tokens >= tb.capacity || tb.refillRate <= 0 {
		return now
	}
	secondsUntilFull := (tb.capacity - tb.tokens) / tb.refillRate
	return now.Add(time.Duration(secondsUntilFull * float64(time.Second)))
}

func (tb *tokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefillTime
}

// RateLimiter applies one token bucket per actor. Requests without an
// actor are keyed by client IP.
type RateLimiter struct {
	config     RateLimiterConfig
	now        func() time.Time
	cleanupTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop;
// call Close to stop it.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := newRateLimiter(config, time.Now)
	go rl.cleanupLoop(time.Minute)
	return rl
}

func newRateLimiter(config RateLimiterConfig, now func() time.Time) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	return &RateLimiter{
		config:     config,
		now:        now,
		cleanupTTL: 5 * time.Minute,
		buckets:    make(map[string]*tokenBucket),
		stop:       make(chan struct{}),
	}
}

func (rl *RateLimiter) bucket(key string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		refillRate := float64(rl.config.RequestsPerMinute) / 60.0
		b = newTokenBucket(float64(rl.config.BurstSize), refillRate, rl.now())
		rl.buckets[key] = b
	}
	return b
}

// Allow reports whether key may make another request.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).allow(rl.now())
}

// Remaining returns the requests left for key.
func (rl *RateLimiter) Remaining(key string) int {
	return rl.bucket(key).remaining(rl.now())
}

// cleanup drops buckets idle for longer than the TTL.
func (rl *RateLimiter) cleanup() int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.idleSince()) > rl.cleanupTTL {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Close stops the cleanup loop.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		b := rl.bucket(key)
		now := rl.now()

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", b.remaining(now)))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", b.reset(now).Unix()))

		if !b.allow(now) {
			retryAfter := int(b.reset(now).Sub(now).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			logging.SecurityEvent("rate_limited", "ratelimit", "key", key, "path", r.URL.Path)
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitKey prefers the actor header, then the client IP.
func rateLimitKey(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(logging.ActorHeader)); actor != "" {
		return "actor:" + actor
	}
	return "ip:" + getClientIP(r)
}

// getClientIP extracts the client IP address from the request.
// X-Forwarded-For and X-Real-IP are honored only when they hold a valid IP.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		clientIP := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if isValidIP(clientIP) {
			return clientIP
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(realIP) {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if isValidIP(ip) {
		return ip
	}
	return "unknown"
}

func isValidIP(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}
