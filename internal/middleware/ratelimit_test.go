package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davudsafarov/testtrack/internal/config"
)

func newLimitedEcho(t *testing.T, cfg config.RateLimitConfig) (*echo.Echo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := echo.New()
	e.POST("/auth/login", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, NewCredentialLimiter(cfg, rdb))
	return e, mr
}

func post(e *echo.Echo) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCredentialLimiterBlocksOverLimit(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Limit: 3, Window: time.Minute, Prefix: "rl:test"}
	e, _ := newLimitedEcho(t, cfg)

	for i := 0; i < 3; i++ {
		rec := post(e)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := post(e)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestCredentialLimiterWindowResets(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute, Prefix: "rl:test"}
	e, mr := newLimitedEcho(t, cfg)

	require.Equal(t, http.StatusOK, post(e).Code)
	require.Equal(t, http.StatusTooManyRequests, post(e).Code)

	// Once the window passes the counter expires and requests flow again.
	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, post(e).Code)
}

func TestCredentialLimiterDisabled(t *testing.T) {
	e := echo.New()
	e.POST("/auth/login", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, NewCredentialLimiter(config.RateLimitConfig{Enabled: false}, nil))

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, post(e).Code)
	}
}

func TestCredentialLimiterDegradesOpenOnRedisFailure(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute, Prefix: "rl:test"}
	e, mr := newLimitedEcho(t, cfg)

	mr.Close()

	// Redis gone: requests pass instead of failing closed.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(e).Code)
	}
}
