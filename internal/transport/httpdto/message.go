package httpdto

import (
	"salon-chat/internal/domain/message"
)

// SendMessageRequest is used for POST /chats/:id/messages and the
// send_message event (which also carries chat_id).
type SendMessageRequest struct {
	ChatID     string         `json:"chat_id,omitempty"`
	Content    string         `json:"content"`
	Type       string         `json:"type,omitempty"`
	Attachment *AttachmentDTO `json:"attachment,omitempty"`
	ReplyToID  string         `json:"reply_to_id,omitempty"`
}

type EditMessageRequest struct {
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content"`
}

type ListMessagesQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Cursor string `form:"cursor"`
}

type AttachmentDTO struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

type ReadReceiptDTO struct {
	StaffID string `json:"staff_id"`
	ReadAt  string `json:"read_at"`
}

type MessageDTO struct {
	ID         string           `json:"id"`
	ChatID     string           `json:"chat_id"`
	Seq        int64            `json:"seq"`
	SenderID   string           `json:"sender_id"`
	Content    string           `json:"content"`
	Type       string           `json:"type"`
	Attachment *AttachmentDTO   `json:"attachment,omitempty"`
	ReplyToID  string           `json:"reply_to_id,omitempty"`
	IsEdited   bool             `json:"is_edited"`
	EditedAt   string           `json:"edited_at,omitempty"`
	IsDeleted  bool             `json:"is_deleted"`
	DeletedAt  string           `json:"deleted_at,omitempty"`
	CreatedAt  string           `json:"created_at"`
	ReadBy     []ReadReceiptDTO `json:"read_by"`
}

type MessagePageDTO struct {
	Messages   []MessageDTO `json:"messages"`
	Page       int          `json:"page,omitempty"`
	Limit      int          `json:"limit"`
	Total      int64        `json:"total"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	DeletedAt string `json:"deleted_at"`
}

type MessagesReadPayload struct {
	ChatID            string `json:"chat_id"`
	StaffID           string `json:"staff_id"`
	LastReadMessageID string `json:"last_read_message_id"`
	ReadAt            string `json:"read_at"`
}

// Attachment converts the request shape into domain metadata.
func (a *AttachmentDTO) Attachment() *message.Attachment {
	if a == nil {
		return nil
	}
	return &message.Attachment{URL: a.URL, Name: a.Name, Size: a.Size, Mime: a.Mime}
}

func FromMessage(m message.Message) MessageDTO {
	dto := MessageDTO{
		ID:        m.ID.String(),
		ChatID:    m.ChatID.String(),
		Seq:       m.Seq,
		SenderID:  m.SenderID.String(),
		Content:   m.Content,
		Type:      string(m.Type),
		ReplyToID: formatNullUUID(m.ReplyToID),
		IsEdited:  m.IsEdited,
		EditedAt:  formatNullTime(m.EditedAt),
		IsDeleted: m.IsDeleted,
		DeletedAt: formatNullTime(m.DeletedAt),
		CreatedAt: formatTime(m.CreatedAt),
		ReadBy:    make([]ReadReceiptDTO, 0, len(m.ReadBy)),
	}
	if !m.Attachment.IsZero() {
		dto.Attachment = &AttachmentDTO{
			URL:  m.Attachment.URL,
			Name: m.Attachment.Name,
			Size: m.Attachment.Size,
			Mime: m.Attachment.Mime,
		}
	}
	for _, r := range m.ReadBy {
		dto.ReadBy = append(dto.ReadBy, ReadReceiptDTO{StaffID: r.StaffID.String(), ReadAt: formatTime(r.ReadAt)})
	}
	return dto
}

func FromMessages(messages []message.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, FromMessage(m))
	}
	return out
}

// MessageIDPayload is the body of delete_message.
type MessageIDPayload struct {
	MessageID string `json:"message_id"`
}
