package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/davudsafarov/testtrack/internal/config"
)

// NewCredentialLimiter returns a fixed-window rate limiter for the
// credential endpoints, keyed by client address and route, with the
// counters kept in Redis so the limit holds across service instances.
// The INCR and EXPIRE run as one script so a counter can never be
// created without a TTL.
//
// When the limiter is disabled or Redis is unreachable the middleware
// degrades open and simply forwards the request: losing throttling is
// preferable to losing logins.
func NewCredentialLimiter(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	windowScript := redis.NewScript(`
        local current = redis.call('INCR', KEYS[1])
        if current == 1 then
            redis.call('PEXPIRE', KEYS[1], ARGV[1])
        end
        local ttl = redis.call('PTTL', KEYS[1])
        return { current, ttl }
    `)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := strings.Join([]string{cfg.Prefix, ip, c.Path()}, ":")

			ctx := c.Request().Context()
			vals, err := windowScript.Run(ctx, rdb, []string{key}, cfg.Window.Milliseconds()).Result()
			if err != nil {
				c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
				return next(c)
			}

			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 2 {
				return next(c)
			}
			current, _ := arr[0].(int64)
			ttlMs, _ := arr[1].(int64)

			remaining := int64(cfg.Limit) - current
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if current > int64(cfg.Limit) {
				secs := int((time.Duration(ttlMs) * time.Millisecond).Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}
