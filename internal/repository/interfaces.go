package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/message"
	"salon-chat/internal/domain/staff"
)

type ChatRepository interface {
	// Create persists the chat together with its members.
	Create(ctx context.Context, c *chat.Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error)
	GetActiveByPairKey(ctx context.Context, pairKey string) (chat.Chat, error)
	Update(ctx context.Context, c chat.Chat) error

	// ListActiveForStaff orders by last_message_at desc, chats without
	// messages last by creation time desc.
	ListActiveForStaff(ctx context.Context, staffID uuid.UUID) ([]chat.Chat, error)
	ActiveChatIDsForStaff(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error)

	AddMembers(ctx context.Context, members []chat.Member) error
	RemoveMember(ctx context.Context, chatID, staffID uuid.UUID) error
	UpdateMember(ctx context.Context, m chat.Member) error
	GetMember(ctx context.Context, chatID, staffID uuid.UUID) (chat.Member, error)

	// AdvanceReadPointer moves the pointer only forward. It reports whether
	// the row changed.
	AdvanceReadPointer(ctx context.Context, chatID, staffID, messageID uuid.UUID, seq int64, at time.Time) (bool, error)
}

type MessageRepository interface {
	// Append allocates the next per-chat Seq, inserts the message and moves
	// the chat's last message pointer in one transaction.
	Append(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	Update(ctx context.Context, m message.Message) error

	CountVisible(ctx context.Context, chatID uuid.UUID) (int64, error)
	// ListVisible returns non-deleted messages by Seq ascending.
	ListVisible(ctx context.Context, chatID uuid.UUID, offset, limit int) ([]message.Message, error)
	// ListVisibleBefore returns up to limit non-deleted messages with
	// Seq < beforeSeq, by Seq ascending.
	ListVisibleBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error)
	LatestVisible(ctx context.Context, chatID uuid.UUID) (message.Message, error)
	CountUnread(ctx context.Context, chatID, staffID uuid.UUID, afterSeq int64) (int64, error)
}

type StaffDirectory interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]staff.Staff, error)
}
