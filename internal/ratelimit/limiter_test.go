package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllow_WindowLimit(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		Window: 15 * time.Minute,
		Limits: map[string]int{BucketAuth: 3},
		Clock:  clock,
	})
	defer limiter.Close()

	ip := "203.0.113.7"
	for i := 0; i < 3; i++ {
		if result := limiter.Allow(BucketAuth, ip); !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	clock.Advance(5 * time.Minute)
	result := limiter.Allow(BucketAuth, ip)
	if result.Allowed {
		t.Fatal("fourth request in window should be blocked")
	}
	if result.RetryAfter != 10*time.Minute {
		t.Errorf("Expected RetryAfter 10m, got %v", result.RetryAfter)
	}

	if result := limiter.Allow(BucketAuth, "198.51.100.1"); !result.Allowed {
		t.Error("other IPs should have their own window")
	}

	clock.Advance(10 * time.Minute)
	if result := limiter.Allow(BucketAuth, ip); !result.Allowed {
		t.Error("request after window expires should be allowed")
	}
}

func TestAllow_BucketsAreIndependent(t *testing.T) {
	limiter := New(&Config{
		Window: time.Minute,
		Limits: map[string]int{BucketGlobal: 10, BucketAuth: 1},
		Clock:  newMockClock(),
	})
	defer limiter.Close()

	ip := "203.0.113.7"
	limiter.Allow(BucketAuth, ip)
	if limiter.Allow(BucketAuth, ip).Allowed {
		t.Fatal("auth bucket should be exhausted")
	}
	if result := limiter.Allow(BucketGlobal, ip); !result.Allowed || result.Remaining != 9 {
		t.Fatalf("global bucket should be untouched, got %+v", result)
	}
	if !limiter.Allow("unknown", ip).Allowed {
		t.Fatal("unconfigured bucket should always pass")
	}
}

func TestCleanupDropsExpiredWindows(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		Window: time.Minute,
		Limits: map[string]int{BucketGlobal: 10},
		Clock:  clock,
	})
	defer limiter.Close()

	limiter.Allow(BucketGlobal, "203.0.113.7")
	clock.Advance(2 * time.Minute)
	limiter.cleanup()

	limiter.mu.Lock()
	remaining := len(limiter.windows)
	limiter.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected expired windows to be removed, got %d", remaining)
	}
}

func TestMiddleware_RejectsWith429AndSkips(t *testing.T) {
	limiter := New(&Config{
		Window: time.Minute,
		Limits: map[string]int{BucketGlobal: 1},
		Clock:  newMockClock(),
	})
	defer limiter.Close()

	handler := limiter.Middleware(BucketGlobal, func(r *http.Request) bool {
		return r.URL.Path == "/static/app.js"
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("/api/v1/courts"); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	if rec := do("/static/app.js"); rec.Code != http.StatusOK {
		t.Fatalf("expected skipped path to pass, got %d", rec.Code)
	}
	rec := do("/api/v1/courts")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remoteAddr: "203.0.113.7:1234", want: "203.0.113.7"},
		{name: "untrusted proxy ignores xff", remoteAddr: "10.0.0.1:1234", xff: "198.51.100.9", want: "10.0.0.1"},
		{name: "rightmost public xff", remoteAddr: "10.0.0.1:1234", xff: "1.1.1.1, 198.51.100.9, 10.0.0.2", trustProxy: true, want: "198.51.100.9"},
		{name: "all private xff", remoteAddr: "10.0.0.1:1234", xff: "10.0.0.3, 192.168.1.1", trustProxy: true, want: "192.168.1.1"},
		{name: "x-real-ip", remoteAddr: "10.0.0.1:1234", xri: "198.51.100.4", trustProxy: true, want: "198.51.100.4"},
		{name: "no port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
