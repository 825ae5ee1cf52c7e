package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewRateLimiter(rdb, limit, window), mr
}

func TestAllowWithinLimit(t *testing.T) {
	rl, _ := setupLimiter(t, 3, time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/users/login", nil)

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(req, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := rl.Allow(req, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit should be blocked")
}

func TestAllowKeysAreIndependent(t *testing.T) {
	rl, _ := setupLimiter(t, 1, time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/users/login", nil)

	allowed, err := rl.Allow(req, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rl.Allow(req, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed, "a different client has its own window")
}

func TestMiddlewareReturns429(t *testing.T) {
	rl, _ := setupLimiter(t, 1, time.Minute)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/users/login", nil)
	req.RemoteAddr = "1.2.3.4:51000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddlewareFailsOpenWhenRedisDown(t *testing.T) {
	rl, mr := setupLimiter(t, 1, time.Minute)
	mr.Close()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/users/login", nil)
	req.RemoteAddr = "1.2.3.4:51000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "losing Redis must not block logins")
}
