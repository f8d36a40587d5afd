package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/ddx/ddx/internal/platform/auth"
)

// limiterIdle is how long an unused caller limiter is kept.
const limiterIdle = 10 * time.Minute

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// RateLimit allows each caller RequestsPerSecond with bursts of BurstSize,
// answering 429 with Retry-After once the budget is spent. Callers are keyed
// by user and client address. A non-positive rate disables it.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiters := gocache.New(limiterIdle, limiterIdle)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	limiterFor := func(key string) *rate.Limiter {
		if v, ok := limiters.Get(key); ok {
			limiters.SetDefault(key, v)
			return v.(*rate.Limiter)
		}
		lim := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
		if err := limiters.Add(key, lim, gocache.DefaultExpiration); err != nil {
			if v, ok := limiters.Get(key); ok {
				return v.(*rate.Limiter)
			}
		}
		return lim
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.RequestsPerSecond <= 0 {
			return next
		}
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = uid + ":" + key
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			lim := limiterFor(key)
			if !lim.Allow() {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// retryAfter is the whole number of seconds until lim grants another event.
func retryAfter(lim *rate.Limiter) int {
	r := lim.Reserve()
	defer r.Cancel()
	if !r.OK() {
		return 1
	}
	return int(math.Max(1, math.Ceil(r.Delay().Seconds())))
}
