package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	clock := newFakeClock()
	rl := newRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2}, clock.Now)

	if !rl.Allow("alice") || !rl.Allow("alice") {
		t.Fatal("burst requests denied")
	}
	if rl.Allow("alice") {
		t.Error("request over burst allowed")
	}
	if !rl.Allow("bob") {
		t.Error("bob limited by alice's bucket")
	}

	clock.Advance(time.Second)
	if !rl.Allow("alice") {
		t.Error("request after refill denied")
	}
	if got := rl.Remaining("alice"); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	clock := newFakeClock()
	rl := newRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2}, clock.Now)
	rl.Allow("alice")
	clock.Advance(4 * time.Minute)
	rl.Allow("bob")

	clock.Advance(2 * time.Minute)
	if removed := rl.cleanup(); removed != 1 {
		t.Errorf("cleanup() removed %d, want 1", removed)
	}
}

func TestRateLimiterDefaultsBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 30})
	defer rl.Close()
	if rl.config.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want 10", rl.config.BurstSize)
	}
	rl.Close() // idempotent
}

func TestRateLimitMiddlewarePerActor(t *testing.T) {
	clock := newFakeClock()
	rl := newRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1}, clock.Now)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/passages", nil)
		req.Header.Set("X-Actor-ID", actor)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	if w := send("alice"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := send("alice")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("rate limit headers = %v", w.Header())
	}
	if w := send("bob"); w.Code != http.StatusOK {
		t.Errorf("bob status = %d", w.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"forwarded", "192.0.2.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"forwarded garbage", "192.0.2.1:1234", map[string]string{"X-Forwarded-For": "<script>"}, "192.0.2.1"},
		{"real ip", "192.0.2.1:1234", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
		{"no port", "192.0.2.9", nil, "192.0.2.9"},
		{"invalid", "nonsense", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := rateLimitKey(req); got != "ip:192.0.2.1" {
		t.Errorf("rateLimitKey() = %q", got)
	}
	req.Header.Set("X-Actor-ID", "alice")
	if got := rateLimitKey(req); got != "actor:alice" {
		t.Errorf("rateLimitKey() = %q", got)
	}
}
