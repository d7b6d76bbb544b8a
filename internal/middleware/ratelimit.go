package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
	"github.com/civicgrid/civicgrid-api/pkg/response"
)

// SubmissionRateLimit caps issue submissions per user per window using a
// Redis counter. Fails open: if Redis is down, reports still go through.
func SubmissionRateLimit(client *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if client == nil || cfg.IssuesPerWindow <= 0 {
			c.Next()
			return
		}

		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			c.Next()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		key := fmt.Sprintf("ratelimit:issues:%s", claims.UserID)
		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(c.Request.Context(), key, cfg.Window).Err(); err != nil {
				logger.Warn("rate limit expiry not set", zap.String("key", key), zap.Error(err))
			}
		}

		if count > int64(cfg.IssuesPerWindow) {
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests,
				fmt.Sprintf("submission limit of %d per %s reached", cfg.IssuesPerWindow, cfg.Window)))
			c.Abort()
			return
		}
		c.Next()
	}
}
