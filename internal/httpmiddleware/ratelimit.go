package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"hadirku/internal/auth"
)

// Counter tracks request counts per key within a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter counts with INCR so the limit holds across api replicas and
// survives restarts. The window TTL is set on the first hit of each window.
type RedisCounter struct {
	Client *redis.Client
}

func (c RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		c.Client.Expire(ctx, key, window)
	}
	return n, nil
}

// StationLimiter rejects callers exceeding perMinute requests. Authenticated
// requests are keyed by the station subject from the bearer token, so one
// misbehaving scanner cannot starve the others behind a shared school NAT;
// unauthenticated requests fall back to client IP.
type StationLimiter struct {
	counter   Counter
	perMinute int64
}

func NewStationLimiter(counter Counter, perMinute int) *StationLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &StationLimiter{counter: counter, perMinute: int64(perMinute)}
}

// GinMiddleware enforces the limit. Place it after StationAuth on routes that
// carry a token; elsewhere it keys by IP.
func (l *StationLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "hadirku:ratelimit:ip:" + c.ClientIP()
		if v, ok := c.Get("claims"); ok {
			if claims, ok := v.(auth.Claims); ok && claims.Subject != "" {
				key = "hadirku:ratelimit:station:" + claims.Subject
			}
		}
		n, err := l.counter.Hit(c.Request.Context(), key, time.Minute)
		if err != nil {
			// a redis outage must not take scanning down with it
			c.Next()
			return
		}
		if n > l.perMinute {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}
