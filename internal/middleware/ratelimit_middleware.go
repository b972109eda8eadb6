package middleware

import (
	"context"
	"net/http"
	"strconv"

	"salon-chat/internal/redis"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"
	"salon-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLimiter is satisfied by redis.RateLimiter.
type RequestLimiter interface {
	AllowRequest(ctx context.Context, clientKey string) (*redis.RateLimitResult, error)
}

// RateLimitMiddleware applies the per-client REST budget. Limiter errors
// let the request through.
func RateLimitMiddleware(limiter RequestLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowRequest(c.Request.Context(), c.ClientIP())
		if err != nil {
			if l != nil {
				l.WithContext(c.Request.Context()).Warn("rate limiter unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpdto.FromError(salon_errors.RateLimited("rate limit exceeded")))
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
