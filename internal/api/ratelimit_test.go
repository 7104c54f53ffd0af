package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docsage/docsage/internal/testutil"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Parallel()

	// Burst of 2 with negligible refill: third request must be rejected.
	rl := newRateLimiter(0.0001, 2)

	if !rl.allow("1.2.3.4") {
		t.Error("first request rejected")
	}
	if !rl.allow("1.2.3.4") {
		t.Error("second request rejected")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request allowed, want rejected")
	}

	// A different IP has its own bucket.
	if !rl.allow("5.6.7.8") {
		t.Error("different IP rejected")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	rl := newRateLimiter(0.0001, 1)
	handler := rateLimitMiddleware(rl, false, testutil.DiscardLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{"remote addr only", "10.0.0.1:555", "", "", false, "10.0.0.1"},
		{"proxy headers ignored when untrusted", "10.0.0.1:555", "1.1.1.1", "", false, "10.0.0.1"},
		{"x-real-ip when trusted", "10.0.0.1:555", "1.1.1.1", "", true, "1.1.1.1"},
		{"x-forwarded-for first entry", "10.0.0.1:555", "", "2.2.2.2, 3.3.3.3", true, "2.2.2.2"},
		{"invalid header falls back", "10.0.0.1:555", "not-an-ip", "", true, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			if got := clientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
