package middleware

import (
	"net/http"
	"strings"

	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the bearer token to an active staff identity.
func AuthMiddleware(verifier services.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.FromError(salon_errors.Authentication("unauthorized")))
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(services.HTTPStatus(err), httpdto.FromError(err))
			return
		}

		c.Request = c.Request.WithContext(services.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
