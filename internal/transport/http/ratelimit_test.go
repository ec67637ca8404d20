package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates per-client request throttling behind a trusted proxy.
// Scope: Unit Test
// Security: Brute-force mitigation on login
// Expected: Requests beyond the burst get 429; other clients are unaffected.
// Test Case ID: RL-01
func TestRateLimitMiddleware_Throttles(t *testing.T) {
	rl := NewRateLimiter(0.001, 2).WithTrustedProxy(true)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("192.0.2.1"))
	assert.Equal(t, http.StatusNoContent, send("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
	assert.Equal(t, http.StatusNoContent, send("192.0.2.2"))
}

// TestPurpose: Validates that a directly connected client cannot dodge its bucket.
// Scope: Unit Test
// Security: Reconnecting from a new source port or forging forwarding headers must not reset the limit.
// Expected: The second request from the same host gets 429 regardless of port, X-Forwarded-For or X-Real-IP.
// Test Case ID: RL-02
func TestRateLimitMiddleware_KeysOnHost(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remoteAddr string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = remoteAddr
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("203.0.113.9:4000", nil))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9:4001", nil))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9:4002", map[string]string{"X-Forwarded-For": "192.0.2.50"}))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9:4003", map[string]string{"X-Real-IP": "192.0.2.51"}))
	assert.Equal(t, http.StatusNoContent, send("203.0.113.10:4000", nil))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.False(t, rl.Enabled())

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for range 10 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.GetLimiter("192.0.2.1")
	now = now.Add(5 * time.Minute)
	rl.GetLimiter("192.0.2.2")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.evictIdle())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "192.0.2.2")
}
