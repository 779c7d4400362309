package middleware

import (
	"context"

	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/logger"
	"coderunner/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter counts requests per subject.
type Limiter interface {
	Allow(ctx context.Context, subject string) error
}

// RateLimitMiddleware enforces a per client IP budget. A nil limiter
// disables the check.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		switch {
		case err == nil:
			c.Next()
		case appErr.Is(err, appErr.TooManyRequests):
			response.AbortWithError(c, err)
		default:
			// fail open when the store is unreachable
			logger.Warn(c.Request.Context(), "rate limit check skipped", zap.Error(err))
			c.Next()
		}
	}
}
