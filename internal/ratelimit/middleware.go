package ratelimit

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/usagepulse/internal/errors"
)

// IPRateLimitMiddleware limits requests per client IP. Paths starting with
// one of the exempt prefixes are never limited.
func (rl *RateLimiter) IPRateLimitMiddleware(exempt ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range exempt {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		ip := c.ClientIP()
		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// a broken limiter must not take the API down
			rl.logger.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			retry := retrySeconds(result)
			c.Header("Retry-After", strconv.Itoa(retry))
			rl.logger.SecurityLogger("rate_limit_exceeded", ip, c.Request.UserAgent(), map[string]interface{}{
				"path":  path,
				"limit": result.Limit,
			})
			apperrors.Respond(c, apperrors.NewRateLimitError(strconv.Itoa(retry)+"s"))
			return
		}

		c.Next()
	}
}

// retrySeconds rounds up so clients never retry too early.
func retrySeconds(r *Result) int {
	secs := int((r.RetryAfter + 999_999_999) / 1_000_000_000)
	if secs < 1 {
		secs = 1
	}
	return secs
}
