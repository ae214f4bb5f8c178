package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus reports the limit that applies to the calling IP.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"ip": c.ClientIP(),
			"limit": gin.H{
				"requests": rl.config.PerMinute,
				"period":   "1 minute",
			},
			"backend":   "memory",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if rl.redisClient.IsEnabled() {
			body["backend"] = "redis"
		}
		c.JSON(http.StatusOK, body)
	}
}

// HandleRateLimitStats returns limiter internals and the block counters.
func (rl *RateLimiter) HandleRateLimitStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"limiter":   rl.GetStats(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if rl.metrics != nil {
			body["metrics"] = rl.metrics.GetRateLimitStats()
		}
		c.JSON(http.StatusOK, body)
	}
}
