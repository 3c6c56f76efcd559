package ratelimit

import (
	"fmt"
	"frontdesk-server/internal/observability"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware throttling webhook hits per caller
// number. Requests without a From field pass through untouched.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.IsEnabled() {
			c.Next()
			return
		}

		callerNumber := c.PostForm("From")
		if callerNumber == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result := s.CheckCaller(ctx, callerNumber)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", result.RetryAfterMs/1000))
			ctx = observability.WithFields(ctx,
				observability.Field{Key: "caller_number", Value: callerNumber},
				observability.Field{Key: "retry_after_ms", Value: result.RetryAfterMs},
			)
			s.logger.Warn(ctx, "Caller exceeded webhook rate limit")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": result.RetryAfterMs / 1000,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
