package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	a := rl.GetLimiter("10.0.0.1")
	if !a.Allow() || !a.Allow() {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if a.Allow() {
		t.Error("Expected third request to be limited")
	}

	if !rl.GetLimiter("10.0.0.2").Allow() {
		t.Error("Another client should have its own bucket")
	}
	if rl.GetLimiter("10.0.0.1") != a {
		t.Error("Expected the same limiter for the same client")
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.GetLimiter("10.0.0.1")
	rl.GetLimiter("10.0.0.2")
	if rl.Size() != 2 {
		t.Fatalf("Expected 2 tracked clients, got %d", rl.Size())
	}

	now = now.Add(limiterIdleTTL + time.Minute)
	rl.GetLimiter("10.0.0.3")
	if rl.Size() != 1 {
		t.Errorf("Expected idle clients to be evicted, got %d", rl.Size())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewWebhookRateLimitMiddleware(2, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = "192.0.2.10"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes[i] = rr.Code

		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Error("Expected Retry-After header on 429")
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: expected %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestRateLimitMiddleware_SharesBucketAcrossPorts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewWebhookRateLimitMiddleware(2, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	addrs := []string{"192.0.2.10:50001", "192.0.2.10:50002", "192.0.2.10:50003", "192.0.2.11:50004"}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusOK}
	for i, addr := range addrs {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != want[i] {
			t.Errorf("request from %s: expected %d, got %d", addr, want[i], rr.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.10:443", "192.0.2.10"},
		{"[2001:db8::1]:8080", "2001:db8::1"},
		{"192.0.2.10", "192.0.2.10"},
		{"2001:db8::1", "2001:db8::1"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}
