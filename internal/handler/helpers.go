package handler

import (
	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"
	"salon-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError writes err with the status of its kind. Internal errors are
// logged and answered with a generic reason.
func respondError(c *gin.Context, err error) {
	if salon_errors.KindOf(err) == salon_errors.KindInternal {
		if l := logger.GetGlobalLogger(); l != nil {
			l.WithContext(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
	}
	c.JSON(services.HTTPStatus(err), httpdto.FromError(err))
}

func invalidRequest(c *gin.Context) {
	respondError(c, salon_errors.Validation("invalid request"))
}

// staffID returns the authenticated caller, answering 401 when absent.
func staffID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := services.StaffIDFromContext(c.Request.Context())
	if !ok {
		respondError(c, salon_errors.Authentication("unauthorized"))
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a uuid route parameter, answering 400 when malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := httpdto.ParseID(c.Param(name), name)
	if err != nil {
		respondError(c, err)
		return uuid.Nil, false
	}
	return id, true
}
