package httpdto

import (
	"database/sql"
	"time"

	"salon-chat/internal/domain/chat"

	"github.com/google/uuid"
)

// CreateChatRequest is used for POST /chats and the create_group event.
type CreateChatRequest struct {
	Kind        string   `json:"kind"`
	MemberIDs   []string `json:"member_ids"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
}

// UpdateChatRequest is used for PUT /chats/:id and update_group.
// Absent fields are left unchanged.
type UpdateChatRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

type AddMembersRequest struct {
	MemberIDs []string `json:"member_ids" binding:"required"`
}

type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type SetMuteRequest struct {
	Muted bool `json:"muted"`
}

type MemberDTO struct {
	StaffID           string `json:"staff_id"`
	Role              string `json:"role"`
	JoinedAt          string `json:"joined_at"`
	LastReadMessageID string `json:"last_read_message_id,omitempty"`
	LastReadAt        string `json:"last_read_at,omitempty"`
	Muted             bool   `json:"muted"`
}

type ChatDTO struct {
	ID            string      `json:"id"`
	Kind          string      `json:"kind"`
	Name          string      `json:"name,omitempty"`
	Description   string      `json:"description,omitempty"`
	Avatar        string      `json:"avatar,omitempty"`
	CreatedBy     string      `json:"created_by"`
	Members       []MemberDTO `json:"members"`
	Admins        []string    `json:"admins"`
	IsActive      bool        `json:"is_active"`
	LastMessageID string      `json:"last_message_id,omitempty"`
	LastMessageAt string      `json:"last_message_at,omitempty"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
}

type CreateChatResponse struct {
	Chat    ChatDTO `json:"chat"`
	Created bool    `json:"created"`
}

type UnreadCountDTO struct {
	ChatID string `json:"chat_id"`
	Count  int64  `json:"count"`
}

type ChatIDPayload struct {
	ChatID string `json:"chat_id"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return formatTime(t.Time)
}

func formatNullUUID(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

func FromMember(m chat.Member) MemberDTO {
	return MemberDTO{
		StaffID:           m.StaffID.String(),
		Role:              string(m.Role),
		JoinedAt:          formatTime(m.JoinedAt),
		LastReadMessageID: formatNullUUID(m.LastReadMessageID),
		LastReadAt:        formatNullTime(m.LastReadAt),
		Muted:             m.Muted,
	}
}

func FromMembers(members []chat.Member) []MemberDTO {
	out := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, FromMember(m))
	}
	return out
}

func FromChat(c chat.Chat) ChatDTO {
	admins := make([]string, 0, 1)
	for _, id := range c.Admins() {
		admins = append(admins, id.String())
	}
	return ChatDTO{
		ID:            c.ID.String(),
		Kind:          string(c.Kind),
		Name:          c.Name,
		Description:   c.Description,
		Avatar:        c.Avatar,
		CreatedBy:     c.CreatedBy.String(),
		Members:       FromMembers(c.Members),
		Admins:        admins,
		IsActive:      c.IsActive,
		LastMessageID: formatNullUUID(c.LastMessageID),
		LastMessageAt: formatNullTime(c.LastMessageAt),
		CreatedAt:     formatTime(c.CreatedAt),
		UpdatedAt:     formatTime(c.UpdatedAt),
	}
}

func FromChats(chats []chat.Chat) []ChatDTO {
	out := make([]ChatDTO, 0, len(chats))
	for _, c := range chats {
		out = append(out, FromChat(c))
	}
	return out
}

// ChatMembersPayload is the body of add_members and remove_members.
type ChatMembersPayload struct {
	ChatID    string   `json:"chat_id"`
	MemberIDs []string `json:"member_ids"`
}

// UpdateGroupPayload is the body of update_group.
type UpdateGroupPayload struct {
	ChatID string `json:"chat_id"`
	UpdateChatRequest
}
