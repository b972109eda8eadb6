package services

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"salon-chat/internal/domain/message"
	"salon-chat/internal/events"
	"salon-chat/internal/metrics"
	"salon-chat/internal/repository"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"
	"salon-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxContentChars = 2000
	MaxContentWords = 300

	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

type MessageService struct {
	messages repository.MessageRepository
	chats    *ChatService
	reads    *ReadService
	locks    *KeyedMutex
	bus      Broadcaster
	limiter  SendLimiter
	log      *logger.Logger

	markReadOnFirstPage bool
}

type MessageServiceOptions struct {
	Limiter             SendLimiter
	MarkReadOnFirstPage bool
}

type SendInput struct {
	ChatID     uuid.UUID
	SenderID   uuid.UUID
	Content    string
	Type       message.Type
	Attachment *message.Attachment
	ReplyToID  *uuid.UUID
}

// Page is one slice of a chat's history, oldest first.
type Page struct {
	Messages   []message.Message
	Page       int
	Limit      int
	Total      int64
	HasMore    bool
	NextCursor string
}

func NewMessageService(messages repository.MessageRepository, chats *ChatService, reads *ReadService, locks *KeyedMutex, bus Broadcaster, log *logger.Logger, opts MessageServiceOptions) *MessageService {
	if bus == nil {
		bus = NopBroadcaster{}
	}
	return &MessageService{
		messages:            messages,
		chats:               chats,
		reads:               reads,
		locks:               locks,
		bus:                 bus,
		limiter:             opts.Limiter,
		log:                 log,
		markReadOnFirstPage: opts.MarkReadOnFirstPage,
	}
}

// SendInputFromRequest validates the wire shape of a send request. The chat
// id comes from req.ChatID.
func SendInputFromRequest(req httpdto.SendMessageRequest, senderID uuid.UUID) (SendInput, error) {
	chatID, err := httpdto.ParseID(req.ChatID, "chat_id")
	if err != nil {
		return SendInput{}, err
	}
	input := SendInput{
		ChatID:     chatID,
		SenderID:   senderID,
		Content:    req.Content,
		Type:       message.Type(req.Type),
		Attachment: req.Attachment.Attachment(),
	}
	if req.ReplyToID != "" {
		replyTo, err := httpdto.ParseID(req.ReplyToID, "reply_to_id")
		if err != nil {
			return SendInput{}, err
		}
		input.ReplyToID = &replyTo
	}
	return input, nil
}

// Send persists a message and broadcasts it to the chat room. The chat lock
// is held across the write and the enqueue, so broadcast order equals seq
// order.
func (s *MessageService) Send(ctx context.Context, in SendInput) (message.Message, error) {
	if in.Type == "" {
		in.Type = message.TypeText
	}
	if in.Type == message.TypeSystem || !in.Type.Valid() {
		return message.Message{}, salon_errors.Validation("type must be text, image or file")
	}
	if err := validateContent(in.Type, in.Content, in.Attachment); err != nil {
		return message.Message{}, err
	}
	if err := s.allowSend(ctx, in.SenderID); err != nil {
		return message.Message{}, err
	}

	unlock := s.locks.Lock(chatKey(in.ChatID))
	defer unlock()

	if err := s.chats.RequireMember(ctx, in.ChatID, in.SenderID); err != nil {
		return message.Message{}, err
	}

	m := message.Message{
		ID:        uuid.New(),
		ChatID:    in.ChatID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		Type:      in.Type,
		CreatedAt: time.Now().UTC(),
	}
	if in.Attachment != nil {
		m.Attachment = *in.Attachment
	}
	if in.ReplyToID != nil {
		target, err := s.messages.GetByID(ctx, *in.ReplyToID)
		if err != nil || target.ChatID != in.ChatID || target.IsDeleted {
			if err != nil && !errors.Is(err, salon_errors.ErrNotFound) {
				return message.Message{}, err
			}
			return message.Message{}, salon_errors.Validation("reply target must be a message in this chat")
		}
		m.ReplyToID = uuid.NullUUID{UUID: target.ID, Valid: true}
	}

	if err := s.messages.Append(ctx, &m); err != nil {
		return message.Message{}, err
	}
	metrics.MessagesPersisted.WithLabelValues(string(m.Type)).Inc()

	s.bus.ToChat(m.ChatID, events.ForChat(events.MessageReceived, m.ChatID, httpdto.FromMessage(m)))
	return m, nil
}

// PostSystem appends a system message on behalf of actorID.
func (s *MessageService) PostSystem(ctx context.Context, chatID, actorID uuid.UUID, content string) error {
	unlock := s.locks.Lock(chatKey(chatID))
	defer unlock()

	m := message.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  actorID,
		Content:   content,
		Type:      message.TypeSystem,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Append(ctx, &m); err != nil {
		return err
	}
	metrics.MessagesPersisted.WithLabelValues(string(m.Type)).Inc()

	s.bus.ToChat(chatID, events.ForChat(events.MessageReceived, chatID, httpdto.FromMessage(m)))
	return nil
}

func (s *MessageService) Edit(ctx context.Context, messageID, requesterID uuid.UUID, content string) (message.Message, error) {
	var edited message.Message
	err := s.mutate(ctx, messageID, requesterID, func(m *message.Message) error {
		if m.IsDeleted {
			return salon_errors.Validation("deleted messages cannot be edited")
		}
		if m.Type != message.TypeText {
			return salon_errors.Validation("only text messages can be edited")
		}
		if err := validateContent(message.TypeText, content, nil); err != nil {
			return err
		}
		m.Content = content
		m.IsEdited = true
		m.EditedAt.Time, m.EditedAt.Valid = time.Now().UTC(), true
		if err := s.messages.Update(ctx, *m); err != nil {
			return err
		}
		edited = *m
		s.bus.ToChat(m.ChatID, events.ForChat(events.MessageEdited, m.ChatID, httpdto.FromMessage(*m)))
		return nil
	})
	return edited, err
}

// SoftDelete hides a message from listings and unread counts. It cannot be
// undone.
func (s *MessageService) SoftDelete(ctx context.Context, messageID, requesterID uuid.UUID) (message.Message, error) {
	var deleted message.Message
	err := s.mutate(ctx, messageID, requesterID, func(m *message.Message) error {
		if m.IsDeleted {
			return salon_errors.Validation("message is already deleted")
		}
		m.IsDeleted = true
		m.DeletedAt.Time, m.DeletedAt.Valid = time.Now().UTC(), true
		if err := s.messages.Update(ctx, *m); err != nil {
			return err
		}
		deleted = *m
		s.bus.ToChat(m.ChatID, events.ForChat(events.MessageDeleted, m.ChatID, httpdto.MessageDeletedPayload{
			MessageID: m.ID.String(),
			ChatID:    m.ChatID.String(),
			DeletedAt: m.DeletedAt.Time.Format(time.RFC3339Nano),
		}))
		return nil
	})
	return deleted, err
}

// mutate runs fn on a sender-owned message under its chat lock.
func (s *MessageService) mutate(ctx context.Context, messageID, requesterID uuid.UUID, fn func(*message.Message) error) error {
	m, err := s.load(ctx, messageID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(chatKey(m.ChatID))
	defer unlock()

	if m, err = s.load(ctx, messageID); err != nil {
		return err
	}
	if err := s.chats.RequireMember(ctx, m.ChatID, requesterID); err != nil {
		return err
	}
	if m.SenderID != requesterID || m.Type == message.TypeSystem {
		return salon_errors.Authorization("only the sender can change this message")
	}
	return fn(&m)
}

func (s *MessageService) load(ctx context.Context, messageID uuid.UUID) (message.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, salon_errors.ErrNotFound) {
			return message.Message{}, salon_errors.NotFound("message not found")
		}
		return message.Message{}, err
	}
	return m, nil
}

func (s *MessageService) GetMessage(ctx context.Context, messageID, staffID uuid.UUID) (message.Message, error) {
	m, err := s.load(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if err := s.chats.RequireMember(ctx, m.ChatID, staffID); err != nil {
		return message.Message{}, err
	}
	if m.IsDeleted {
		return message.Message{}, salon_errors.NotFound("message not found")
	}
	out := []message.Message{m}
	if err := s.reads.DecorateReadBy(ctx, m.ChatID, out); err != nil {
		return message.Message{}, err
	}
	return out[0], nil
}

// List pages backward from the newest message: page 1 holds the newest
// limit messages, each page ordered oldest first.
func (s *MessageService) List(ctx context.Context, chatID, staffID uuid.UUID, page, limit int) (Page, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return Page{}, salon_errors.Validation("page must be positive")
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return Page{}, err
	}
	if err := s.chats.RequireMember(ctx, chatID, staffID); err != nil {
		return Page{}, err
	}

	total, err := s.messages.CountVisible(ctx, chatID)
	if err != nil {
		return Page{}, err
	}
	start, end := pageBounds(total, page, limit)

	var msgs []message.Message
	if end > start {
		if msgs, err = s.messages.ListVisible(ctx, chatID, int(start), int(end-start)); err != nil {
			return Page{}, err
		}
	}

	if page == 1 {
		s.markViewed(ctx, chatID, staffID, msgs)
	}
	if err := s.reads.DecorateReadBy(ctx, chatID, msgs); err != nil {
		return Page{}, err
	}

	out := Page{Messages: msgs, Page: page, Limit: limit, Total: total, HasMore: start > 0}
	if len(msgs) > 0 && out.HasMore {
		out.NextCursor = encodeCursor(msgs[0].Seq)
	}
	return out, nil
}

// ListBefore pages backward from an opaque cursor. An empty cursor starts at
// the newest message. Inserts between calls never shift a page.
func (s *MessageService) ListBefore(ctx context.Context, chatID, staffID uuid.UUID, cursor string, limit int) (Page, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return Page{}, err
	}
	beforeSeq := int64(math.MaxInt64)
	if cursor != "" {
		if beforeSeq, err = decodeCursor(cursor); err != nil {
			return Page{}, err
		}
	}
	if err := s.chats.RequireMember(ctx, chatID, staffID); err != nil {
		return Page{}, err
	}

	msgs, err := s.messages.ListVisibleBefore(ctx, chatID, beforeSeq, limit+1)
	if err != nil {
		return Page{}, err
	}
	out := Page{Limit: limit}
	if len(msgs) > limit {
		msgs = msgs[1:]
		out.HasMore = true
	}
	if out.Total, err = s.messages.CountVisible(ctx, chatID); err != nil {
		return Page{}, err
	}

	if cursor == "" {
		s.markViewed(ctx, chatID, staffID, msgs)
	}
	if err := s.reads.DecorateReadBy(ctx, chatID, msgs); err != nil {
		return Page{}, err
	}

	out.Messages = msgs
	if out.HasMore && len(msgs) > 0 {
		out.NextCursor = encodeCursor(msgs[0].Seq)
	}
	return out, nil
}

// markViewed advances the read pointer when the newest page is fetched.
func (s *MessageService) markViewed(ctx context.Context, chatID, staffID uuid.UUID, msgs []message.Message) {
	if !s.markReadOnFirstPage || len(msgs) == 0 {
		return
	}
	if _, err := s.reads.advance(ctx, chatID, staffID, msgs[len(msgs)-1]); err != nil {
		s.log.WithContext(ctx).Warn("mark read on fetch failed",
			zap.String("chat_id", chatID.String()),
			zap.Error(err),
		)
	}
}

func (s *MessageService) allowSend(ctx context.Context, staffID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.AllowSend(ctx, staffID.String())
	if err != nil {
		// Limiter outages fail open.
		s.log.WithContext(ctx).Warn("send limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return salon_errors.RateLimited("too many messages, slow down")
	}
	return nil
}

// pageBounds returns the [start, end) offsets of page within total
// messages ordered oldest first.
func pageBounds(total int64, page, limit int) (int64, int64) {
	end := total - int64(page-1)*int64(limit)
	if end <= 0 {
		return 0, 0
	}
	start := end - int64(limit)
	if start < 0 {
		start = 0
	}
	return start, end
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, salon_errors.Validation("limit must be positive")
	case limit == 0:
		return DefaultPageLimit, nil
	case limit > MaxPageLimit:
		return MaxPageLimit, nil
	default:
		return limit, nil
	}
}

func validateContent(t message.Type, content string, att *message.Attachment) error {
	trimmed := strings.TrimSpace(content)
	if t.HasAttachment() {
		if att == nil || att.URL == "" || att.Name == "" || att.Mime == "" || att.Size <= 0 {
			return salon_errors.Validation("attachment url, name, mime and size are required")
		}
		if t == message.TypeImage && !strings.HasPrefix(att.Mime, "image/") {
			return salon_errors.Validation("image messages need an image mime type")
		}
		if trimmed == "" {
			return nil
		}
	} else {
		if att != nil && !att.IsZero() {
			return salon_errors.Validation("%s messages cannot carry an attachment", t)
		}
		if t == message.TypeText && trimmed == "" {
			return salon_errors.Validation("content is required")
		}
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return salon_errors.Validation("content exceeds %d characters", MaxContentChars)
	}
	if len(strings.Fields(content)) > MaxContentWords {
		return salon_errors.Validation("content exceeds %d words", MaxContentWords)
	}
	return nil
}

func encodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

func decodeCursor(cursor string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, salon_errors.Validation("invalid cursor")
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq < 1 {
		return 0, salon_errors.Validation("invalid cursor")
	}
	return seq, nil
}
