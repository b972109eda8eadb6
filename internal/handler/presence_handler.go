package handler

import (
	"net/http"
	"strings"

	"salon-chat/internal/presence"
	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PresenceHandler struct {
	chats    *services.ChatService
	registry *presence.Registry
}

func NewPresenceHandler(chats *services.ChatService, registry *presence.Registry) *PresenceHandler {
	return &PresenceHandler{chats: chats, registry: registry}
}

// Get serves GET /presence?staff=a,b. Only staff sharing an active chat
// with the caller are reported; without a filter every contact is listed.
func (h *PresenceHandler) Get(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	contacts, err := h.chats.Contacts(c.Request.Context(), me)
	if err != nil {
		respondError(c, err)
		return
	}

	var ids []uuid.UUID
	if raw := strings.TrimSpace(c.Query("staff")); raw != "" {
		ids, err = httpdto.ParseIDs(strings.Split(raw, ","), "staff")
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		for id := range contacts {
			ids = append(ids, id)
		}
	}

	out := make([]httpdto.PresenceDTO, 0, len(ids))
	for _, id := range ids {
		if _, shared := contacts[id]; !shared {
			continue
		}
		out = append(out, httpdto.PresenceDTO{StaffID: id.String(), Online: h.registry.IsOnline(id)})
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}
