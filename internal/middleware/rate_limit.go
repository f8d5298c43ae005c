package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles per caller with a fixed window counter in Redis.
// Redis being unreachable fails open.
type RateLimiter struct {
	redisClient *redis.Client
}

type RateLimit struct {
	Requests int
	Window   time.Duration
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redisClient: redisClient}
}

// APILimit is the default limit for authenticated circulation endpoints.
// Keys on the user when authenticated, otherwise on the client IP.
func (rl *RateLimiter) APILimit() gin.HandlerFunc {
	return rl.Limit(RateLimit{Requests: 100, Window: time.Minute})
}

func (rl *RateLimiter) Limit(limit RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		key := "rate_limit:ip:" + c.ClientIP()
		if userID := GetUserID(c); userID > 0 {
			key = fmt.Sprintf("rate_limit:user:%d", userID)
		}

		val, err := rl.redisClient.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}

		var count int
		if !errors.Is(err, redis.Nil) {
			count, _ = strconv.Atoi(val)
		}

		if count >= limit.Requests {
			ttl, _ := rl.redisClient.TTL(ctx, key).Result()

			c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Please try again later.",
				},
			})
			c.Abort()
			return
		}

		pipe := rl.redisClient.Pipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, limit.Window)
		if _, err := pipe.Exec(ctx); err != nil {
			c.Next()
			return
		}

		remaining := limit.Requests - count - 1
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limit.Window).Unix(), 10))

		c.Next()
	}
}
