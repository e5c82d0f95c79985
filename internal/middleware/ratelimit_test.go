package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware_LimitsPerClient(t *testing.T) {
	mw := NewRateLimitMiddleware(1)
	handler := mw.Handler(okHandler)

	req1 := httptest.NewRequest(http.MethodPost, "/session/login", nil)
	req1.RemoteAddr = "10.0.0.1:5000"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	assert.Equal(t, http.StatusOK, rec1.Code)

	// Burst is 1, so an immediate second attempt from the same client fails.
	req2 := httptest.NewRequest(http.MethodPost, "/session/login", nil)
	req2.RemoteAddr = "10.0.0.1:5001"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
	assert.Contains(t, rec2.Body.String(), "RATE_LIMITED")

	// Another client has its own budget.
	req3 := httptest.NewRequest(http.MethodPost, "/session/login", nil)
	req3.RemoteAddr = "10.0.0.2:5000"
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestRateLimitMiddleware_Configuration(t *testing.T) {
	assert.Equal(t, 10, NewRateLimitMiddleware(0).rpm)
	assert.Equal(t, 10, NewRateLimitMiddleware(-3).rpm)
	assert.Equal(t, 25, NewRateLimitMiddleware(25).rpm)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	assert.Equal(t, "192.168.1.9", extractClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.4")
	assert.Equal(t, "172.16.0.4", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", extractClientIP(req))
}
