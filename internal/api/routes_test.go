package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()
	// nil store: only routes that never touch the DB are exercised here.
	return SetupRouter(nil, hub, nil)
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"operational"`)
	assert.Contains(t, w.Body.String(), `"dbConnected":false`)
}

func TestAuthMiddleware_RejectsWithoutToken(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "secret-token")
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/draws/some-id", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectsWrongToken(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "secret-token")
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/draws/some-id", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthMiddleware_HealthStaysPublic(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "secret-token")
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_ExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(60, 3)

	for i := 0; i < 3; i++ {
		allowed, _ := rl.allow("10.0.0.1")
		require.True(t, allowed, "request %d should pass within burst", i)
	}

	allowed, retryAfter := rl.allow("10.0.0.1")
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0*time.Millisecond)

	// A different IP has its own bucket.
	allowed, _ = rl.allow("10.0.0.2")
	assert.True(t, allowed)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
