package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeRateLimiter struct {
	allow bool
	err   error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.allow, f.err
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	return f.err
}

func TestRateLimitAllowsWithinLimit(t *testing.T) {
	h := RateLimit(&fakeRateLimiter{allow: true}, 10, time.Minute)(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/compacts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when allowed", rec.Code)
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	h := RateLimit(&fakeRateLimiter{allow: false}, 10, time.Minute)(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/compacts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 when disallowed", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json; charset=utf-8", ct)
	}
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	h := RateLimit(&fakeRateLimiter{err: context.DeadlineExceeded}, 10, time.Minute)(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/compacts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (fail open) on limiter error", rec.Code)
	}
}

func TestExtractClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.RemoteAddr = "10.0.0.2:1234"
	if got := extractClientIP(req); got != "203.0.113.5" {
		t.Errorf("extractClientIP = %q, want 203.0.113.5", got)
	}
}

func TestExtractClientIPFallsBackToRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.9")
	req.RemoteAddr = "10.0.0.2:1234"
	if got := extractClientIP(req); got != "198.51.100.9" {
		t.Errorf("extractClientIP = %q, want 198.51.100.9", got)
	}
}

func TestExtractClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := extractClientIP(req); got != "192.0.2.1" {
		t.Errorf("extractClientIP = %q, want 192.0.2.1", got)
	}
}
