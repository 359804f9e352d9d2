package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, path string, ip string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthEndpointsUseTighterBucket(t *testing.T) {
	m := NewRateLimitMiddleware(100, 3)
	handler := m.Handler(noopHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/auth/login", "192.0.2.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "/api/v1/auth/login", "192.0.2.1"))

	// The general bucket for the same client still has headroom.
	assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/users/profile", "192.0.2.1"))
}

func TestRateLimitIsolatesClients(t *testing.T) {
	m := NewRateLimitMiddleware(100, 2)
	handler := m.Handler(noopHandler())

	assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/auth/login", "192.0.2.1"))
	assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/auth/login", "192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "/api/v1/auth/login", "192.0.2.1"))

	// A different IP gets its own bucket.
	assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/auth/login", "192.0.2.2"))
}

func TestRateLimitResponseShape(t *testing.T) {
	m := NewRateLimitMiddleware(100, 1)
	handler := m.Handler(noopHandler())

	doRequest(handler, "/api/v1/auth/login", "192.0.2.1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"remote addr only", "10.0.0.1:5000", "", "", "10.0.0.1"},
		{"x-forwarded-for wins", "10.0.0.1:5000", "203.0.113.9, 10.0.0.2", "", "203.0.113.9"},
		{"x-real-ip fallback", "10.0.0.1:5000", "", "203.0.113.9", "203.0.113.9"},
		{"empty remote addr", "", "", "", "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
}
