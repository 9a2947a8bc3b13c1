package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"backend_tablets/database"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
)

// RateLimitConfig configures the request rate limiter.
type RateLimitConfig struct {
	Requests     int
	Window       time.Duration
	KeyGenerator func(*gin.Context) string
}

// DefaultKeyGenerator keys the limiter on the client IP address.
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit returns a middleware limiting requests per key within a window.
// Without a reachable redis the middleware is a pass-through, matching the
// best-effort posture of the rest of the system.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}

	return func(c *gin.Context) {
		redisClient := database.GetRedis()
		if redisClient == nil {
			c.Next()
			return
		}

		key := "rate_limit:" + config.KeyGenerator(c)

		current, err := redisClient.Get(database.Ctx, key).Int()
		if err != nil && err != redis.Nil {
			c.Next()
			return
		}

		if current >= config.Requests {
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Too many requests. Limit: %d requests per %v",
					config.Requests, config.Window),
				"retry_after": config.Window.Seconds(),
			})
			c.Abort()
			return
		}

		pipe := redisClient.Pipeline()
		incr := pipe.Incr(database.Ctx, key)
		pipe.Expire(database.Ctx, key, config.Window)
		if _, err := pipe.Exec(database.Ctx); err == nil {
			remaining := config.Requests - int(incr.Val())
			if remaining < 0 {
				remaining = 0
			}
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		c.Next()
	}
}
