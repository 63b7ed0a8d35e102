// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"fmt"

	"worksuite-service/internal/pkg/ratelimit"
	"worksuite-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitMiddleware applies a policy keyed on the authenticated user
// when available, else the client IP. A store failure fails open: an
// outage must not lock everyone out.
func RateLimitMiddleware(store ratelimit.Store, policy ratelimit.Policy, scope string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + clientKey(c)

		result, err := store.Allow(c.Request.Context(), key, policy.Max, policy.Window)
		if err != nil {
			logger.Warn("rate limit check failed", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		if !result.Allowed {
			response.RateLimited(c, result.ResetAt)
			return
		}

		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	if id, ok := GetUserID(c); ok {
		return fmt.Sprintf("user:%d", id)
	}
	return "ip:" + c.ClientIP()
}
