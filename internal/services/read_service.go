package services

import (
	"context"
	"errors"
	"time"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/message"
	"salon-chat/internal/events"
	"salon-chat/internal/repository"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
)

// ReadService owns the per-member read pointer. The pointer only moves
// forward; per-message read receipts are derived from it.
type ReadService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	access   *ChatService
	bus      Broadcaster
}

type ChatUnread struct {
	ChatID uuid.UUID
	Count  int64
}

func NewReadService(chats repository.ChatRepository, messages repository.MessageRepository, access *ChatService, bus Broadcaster) *ReadService {
	if bus == nil {
		bus = NopBroadcaster{}
	}
	return &ReadService{chats: chats, messages: messages, access: access, bus: bus}
}

// MarkAsRead moves the caller's pointer to the newest visible message.
func (s *ReadService) MarkAsRead(ctx context.Context, chatID, staffID uuid.UUID) (chat.Member, error) {
	if err := s.access.RequireMember(ctx, chatID, staffID); err != nil {
		return chat.Member{}, err
	}
	latest, err := s.messages.LatestVisible(ctx, chatID)
	switch {
	case errors.Is(err, salon_errors.ErrNotFound):
	case err != nil:
		return chat.Member{}, err
	default:
		if _, err := s.advance(ctx, chatID, staffID, latest); err != nil {
			return chat.Member{}, err
		}
	}
	return s.chats.GetMember(ctx, chatID, staffID)
}

// MarkMessageRead moves the caller's pointer up to one message.
func (s *ReadService) MarkMessageRead(ctx context.Context, messageID, staffID uuid.UUID) (chat.Member, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, salon_errors.ErrNotFound) {
			return chat.Member{}, salon_errors.NotFound("message not found")
		}
		return chat.Member{}, err
	}
	if err := s.access.RequireMember(ctx, m.ChatID, staffID); err != nil {
		return chat.Member{}, err
	}
	if m.IsDeleted {
		return chat.Member{}, salon_errors.NotFound("message not found")
	}
	if _, err := s.advance(ctx, m.ChatID, staffID, m); err != nil {
		return chat.Member{}, err
	}
	return s.chats.GetMember(ctx, m.ChatID, staffID)
}

// advance reports whether the pointer moved, and emits messages_read when
// it did.
func (s *ReadService) advance(ctx context.Context, chatID, staffID uuid.UUID, m message.Message) (bool, error) {
	at := time.Now().UTC()
	moved, err := s.chats.AdvanceReadPointer(ctx, chatID, staffID, m.ID, m.Seq, at)
	if err != nil || !moved {
		return false, err
	}
	s.bus.ToChat(chatID, events.ForChat(events.MessagesRead, chatID, httpdto.MessagesReadPayload{
		ChatID:            chatID.String(),
		StaffID:           staffID.String(),
		LastReadMessageID: m.ID.String(),
		ReadAt:            at.Format(time.RFC3339Nano),
	}))
	return true, nil
}

// UnreadCount counts visible messages from others past the pointer.
func (s *ReadService) UnreadCount(ctx context.Context, chatID, staffID uuid.UUID) (int64, error) {
	if err := s.access.RequireMember(ctx, chatID, staffID); err != nil {
		return 0, err
	}
	member, err := s.chats.GetMember(ctx, chatID, staffID)
	if err != nil {
		if errors.Is(err, salon_errors.ErrNotFound) {
			return 0, salon_errors.Authorization("not a member of this chat")
		}
		return 0, err
	}
	return s.messages.CountUnread(ctx, chatID, staffID, member.LastReadSeq)
}

// UnreadSummary returns unread counts for every active chat of staffID,
// in chat list order.
func (s *ReadService) UnreadSummary(ctx context.Context, staffID uuid.UUID) ([]ChatUnread, error) {
	chats, err := s.chats.ListActiveForStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	out := make([]ChatUnread, 0, len(chats))
	for _, c := range chats {
		me := c.Member(staffID)
		if me == nil {
			continue
		}
		n, err := s.messages.CountUnread(ctx, c.ID, staffID, me.LastReadSeq)
		if err != nil {
			return nil, err
		}
		out = append(out, ChatUnread{ChatID: c.ID, Count: n})
	}
	return out, nil
}

// DecorateReadBy fills ReadBy from the current members' pointers.
func (s *ReadService) DecorateReadBy(ctx context.Context, chatID uuid.UUID, msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].ReadBy = readersOf(c.Members, msgs[i])
	}
	return nil
}

func readersOf(members []chat.Member, m message.Message) []message.ReadReceipt {
	var out []message.ReadReceipt
	for _, mem := range members {
		if mem.StaffID == m.SenderID || mem.LastReadSeq < m.Seq || !mem.LastReadAt.Valid {
			continue
		}
		out = append(out, message.ReadReceipt{StaffID: mem.StaffID, ReadAt: mem.LastReadAt.Time})
	}
	return out
}
