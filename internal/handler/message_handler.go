package handler

import (
	"net/http"
	"time"

	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *services.MessageService
	reads   *services.ReadService
}

func NewMessageHandler(service *services.MessageService, reads *services.ReadService) *MessageHandler {
	return &MessageHandler{service: service, reads: reads}
}

// Send serves POST /chats/:id/messages. The path chat id wins over any
// chat_id in the body.
func (h *MessageHandler) Send(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	req.ChatID = chatID.String()

	input, err := services.SendInputFromRequest(req, me)
	if err != nil {
		respondError(c, err)
		return
	}
	msg, err := h.service.Send(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

// List serves GET /chats/:id/messages with either page or cursor paging.
func (h *MessageHandler) List(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var q httpdto.ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidRequest(c)
		return
	}

	var (
		page services.Page
		err  error
	)
	if q.Cursor != "" {
		page, err = h.service.ListBefore(c.Request.Context(), chatID, me, q.Cursor, q.Limit)
	} else {
		page, err = h.service.List(c.Request.Context(), chatID, me, q.Page, q.Limit)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MessagePageDTO{
		Messages:   httpdto.FromMessages(page.Messages),
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}))
}

func (h *MessageHandler) Get(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msg, err := h.service.GetMessage(c.Request.Context(), messageID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

func (h *MessageHandler) Edit(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	msg, err := h.service.Edit(c.Request.Context(), messageID, me, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msg, err := h.service.SoftDelete(c.Request.Context(), messageID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MessageDeletedPayload{
		MessageID: msg.ID.String(),
		ChatID:    msg.ChatID.String(),
		DeletedAt: msg.DeletedAt.Time.UTC().Format(time.RFC3339Nano),
	}))
}

// MarkRead serves POST /messages/:id/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	member, err := h.reads.MarkMessageRead(c.Request.Context(), messageID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMember(member)))
}
