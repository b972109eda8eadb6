package handler

import (
	"net/http"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	service *services.ChatService
	reads   *services.ReadService
}

func NewChatHandler(service *services.ChatService, reads *services.ReadService) *ChatHandler {
	return &ChatHandler{service: service, reads: reads}
}

func (h *ChatHandler) List(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chats, err := h.service.ListChats(c.Request.Context(), me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromChats(chats)))
}

func (h *ChatHandler) Get(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.GetChat(c.Request.Context(), chatID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromChat(item)))
}

// Create answers 201 for a new chat and 200 when an existing direct chat
// is returned.
func (h *ChatHandler) Create(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	var req httpdto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	members, err := httpdto.ParseIDs(req.MemberIDs, "member_ids")
	if err != nil {
		respondError(c, err)
		return
	}

	item, created, err := h.service.CreateChat(c.Request.Context(), services.CreateChatInput{
		Kind:        chat.Kind(req.Kind),
		CreatorID:   me,
		MemberIDs:   members,
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.CreateChatResponse{
		Chat:    httpdto.FromChat(item),
		Created: created,
	}))
}

func (h *ChatHandler) Update(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.UpdateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	item, err := h.service.UpdateChat(c.Request.Context(), chatID, me, services.UpdateChatInput{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromChat(item)))
}

func (h *ChatHandler) Deactivate(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), chatID, me); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *ChatHandler) Members(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.service.ListMembers(c.Request.Context(), chatID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMembers(members)))
}

func (h *ChatHandler) AddMembers(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	members, err := httpdto.ParseIDs(req.MemberIDs, "member_ids")
	if err != nil {
		respondError(c, err)
		return
	}
	item, err := h.service.AddMembers(c.Request.Context(), chatID, me, members)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromChat(item)))
}

func (h *ChatHandler) RemoveMember(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "memberId")
	if !ok {
		return
	}
	item, err := h.service.RemoveMember(c.Request.Context(), chatID, me, memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromChat(item)))
}

func (h *ChatHandler) Leave(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.LeaveChat(c.Request.Context(), chatID, me); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *ChatHandler) SetRole(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "memberId")
	if !ok {
		return
	}
	var req httpdto.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	item, err := h.service.SetMemberRole(c.Request.Context(), chatID, me, memberID, chat.Role(req.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromChat(item)))
}

func (h *ChatHandler) SetMute(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.SetMuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}
	member, err := h.service.SetMuted(c.Request.Context(), chatID, me, req.Muted)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMember(member)))
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	member, err := h.reads.MarkAsRead(c.Request.Context(), chatID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMember(member)))
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.reads.UnreadCount(c.Request.Context(), chatID, me)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UnreadCountDTO{ChatID: chatID.String(), Count: n}))
}

// UnreadSummary serves GET /unread.
func (h *ChatHandler) UnreadSummary(c *gin.Context) {
	me, ok := staffID(c)
	if !ok {
		return
	}
	summary, err := h.reads.UnreadSummary(c.Request.Context(), me)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]httpdto.UnreadCountDTO, 0, len(summary))
	for _, s := range summary {
		out = append(out, httpdto.UnreadCountDTO{ChatID: s.ChatID.String(), Count: s.Count})
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}
