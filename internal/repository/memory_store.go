package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/message"
	"salon-chat/internal/domain/staff"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore holds chats and messages in process. It backs
// STORE_DRIVER=memory and the service tests. Values handed out are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[uuid.UUID]*chat.Chat
	messages map[uuid.UUID]*message.Message
	byChat   map[uuid.UUID][]uuid.UUID // message ids in seq order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[uuid.UUID]*chat.Chat),
		messages: make(map[uuid.UUID]*message.Message),
		byChat:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// Chats returns the ChatRepository view of the store.
func (s *MemoryStore) Chats() ChatRepository {
	return &memoryChats{s}
}

// Messages returns the MessageRepository view of the store.
func (s *MemoryStore) Messages() MessageRepository {
	return &memoryMessages{s}
}

type memoryChats struct{ *MemoryStore }

type memoryMessages struct{ *MemoryStore }

func copyChat(c *chat.Chat) chat.Chat {
	out := *c
	out.Members = append([]chat.Member(nil), c.Members...)
	return out
}

func (s *memoryChats) Create(ctx context.Context, c *chat.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[c.ID]; ok {
		return salon_errors.ErrAlreadyExists
	}
	if c.PairKey.Valid && c.IsActive {
		for _, existing := range s.chats {
			if existing.IsActive && existing.PairKey == c.PairKey {
				return salon_errors.ErrAlreadyExists
			}
		}
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	for i := range c.Members {
		c.Members[i].ChatID = c.ID
	}
	stored := copyChat(c)
	s.chats[c.ID] = &stored
	return nil
}

func (s *memoryChats) GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return chat.Chat{}, salon_errors.ErrNotFound
	}
	return copyChat(c), nil
}

func (s *memoryChats) GetActiveByPairKey(ctx context.Context, pairKey string) (chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chats {
		if c.IsActive && c.PairKey.Valid && c.PairKey.String == pairKey {
			return copyChat(c), nil
		}
	}
	return chat.Chat{}, salon_errors.ErrNotFound
}

func (s *memoryChats) Update(ctx context.Context, c chat.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.chats[c.ID]
	if !ok {
		return salon_errors.ErrNotFound
	}
	stored.Name = c.Name
	stored.Description = c.Description
	stored.Avatar = c.Avatar
	stored.IsActive = c.IsActive
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *memoryChats) ListActiveForStaff(ctx context.Context, staffID uuid.UUID) ([]chat.Chat, error) {
	s.mu.RLock()
	var out []chat.Chat
	for _, c := range s.chats {
		if c.IsActive && c.HasMember(staffID) {
			out = append(out, copyChat(c))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastMessageAt.Valid && b.LastMessageAt.Valid:
			if !a.LastMessageAt.Time.Equal(b.LastMessageAt.Time) {
				return a.LastMessageAt.Time.After(b.LastMessageAt.Time)
			}
		case a.LastMessageAt.Valid != b.LastMessageAt.Valid:
			return a.LastMessageAt.Valid
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

func (s *memoryChats) ActiveChatIDsForStaff(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, c := range s.chats {
		if c.IsActive && c.HasMember(staffID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memoryChats) AddMembers(ctx context.Context, members []chat.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range members {
		c, ok := s.chats[m.ChatID]
		if !ok {
			return salon_errors.ErrNotFound
		}
		if c.HasMember(m.StaffID) {
			return salon_errors.ErrAlreadyExists
		}
	}
	for _, m := range members {
		c := s.chats[m.ChatID]
		c.Members = append(c.Members, m)
	}
	return nil
}

func (s *memoryChats) RemoveMember(ctx context.Context, chatID, staffID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return salon_errors.ErrNotFound
	}
	for i, m := range c.Members {
		if m.StaffID == staffID {
			c.Members = append(c.Members[:i:i], c.Members[i+1:]...)
			return nil
		}
	}
	return salon_errors.ErrNotFound
}

func (s *memoryChats) UpdateMember(ctx context.Context, m chat.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[m.ChatID]
	if !ok {
		return salon_errors.ErrNotFound
	}
	stored := c.Member(m.StaffID)
	if stored == nil {
		return salon_errors.ErrNotFound
	}
	stored.Role = m.Role
	stored.Muted = m.Muted
	return nil
}

func (s *memoryChats) GetMember(ctx context.Context, chatID, staffID uuid.UUID) (chat.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return chat.Member{}, salon_errors.ErrNotFound
	}
	m := c.Member(staffID)
	if m == nil {
		return chat.Member{}, salon_errors.ErrNotFound
	}
	return *m, nil
}

func (s *memoryChats) AdvanceReadPointer(ctx context.Context, chatID, staffID, messageID uuid.UUID, seq int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return false, salon_errors.ErrNotFound
	}
	m := c.Member(staffID)
	if m == nil || m.LastReadSeq >= seq {
		return false, nil
	}
	m.LastReadSeq = seq
	m.LastReadMessageID = uuid.NullUUID{UUID: messageID, Valid: true}
	m.LastReadAt.Time, m.LastReadAt.Valid = at, true
	return true, nil
}

func (s *memoryMessages) Append(ctx context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[m.ChatID]
	if !ok {
		return salon_errors.ErrNotFound
	}
	if _, ok := s.messages[m.ID]; ok {
		return salon_errors.ErrAlreadyExists
	}
	m.Seq = c.LastSeq + 1
	stored := *m
	s.messages[m.ID] = &stored
	s.byChat[m.ChatID] = append(s.byChat[m.ChatID], m.ID)

	c.LastSeq = m.Seq
	c.LastMessageID = uuid.NullUUID{UUID: m.ID, Valid: true}
	c.LastMessageAt.Time, c.LastMessageAt.Valid = m.CreatedAt, true
	c.UpdatedAt = time.Now()
	return nil
}

func (s *memoryMessages) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return message.Message{}, salon_errors.ErrNotFound
	}
	return *m, nil
}

func (s *memoryMessages) Update(ctx context.Context, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.messages[m.ID]
	if !ok {
		return salon_errors.ErrNotFound
	}
	stored.Content = m.Content
	stored.IsEdited = m.IsEdited
	stored.EditedAt = m.EditedAt
	stored.IsDeleted = m.IsDeleted
	stored.DeletedAt = m.DeletedAt
	return nil
}

// visibleLocked returns the chat's non-deleted messages in seq order.
func (s *memoryMessages) visibleLocked(chatID uuid.UUID) []message.Message {
	var out []message.Message
	for _, id := range s.byChat[chatID] {
		if m := s.messages[id]; !m.IsDeleted {
			out = append(out, *m)
		}
	}
	return out
}

func (s *memoryMessages) CountVisible(ctx context.Context, chatID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.visibleLocked(chatID))), nil
}

func (s *memoryMessages) ListVisible(ctx context.Context, chatID uuid.UUID, offset, limit int) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.visibleLocked(chatID)
	if offset >= len(all) || limit <= 0 {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memoryMessages) ListVisibleBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.visibleLocked(chatID)
	end := sort.Search(len(all), func(i int) bool { return all[i].Seq >= beforeSeq })
	start := end - limit
	if start < 0 {
		start = 0
	}
	return all[start:end], nil
}

func (s *memoryMessages) LatestVisible(ctx context.Context, chatID uuid.UUID) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byChat[chatID]
	for i := len(ids) - 1; i >= 0; i-- {
		if m := s.messages[ids[i]]; !m.IsDeleted {
			return *m, nil
		}
	}
	return message.Message{}, salon_errors.ErrNotFound
}

func (s *memoryMessages) CountUnread(ctx context.Context, chatID, staffID uuid.UUID, afterSeq int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.visibleLocked(chatID) {
		if m.Seq > afterSeq && m.SenderID != staffID {
			n++
		}
	}
	return n, nil
}

// MemoryStaffDirectory is a fixed staff roster.
type MemoryStaffDirectory struct {
	mu    sync.RWMutex
	staff map[uuid.UUID]staff.Staff
}

func NewMemoryStaffDirectory(members ...staff.Staff) *MemoryStaffDirectory {
	d := &MemoryStaffDirectory{staff: make(map[uuid.UUID]staff.Staff)}
	for _, s := range members {
		d.staff[s.ID] = s
	}
	return d
}

// Put adds or replaces a staff record.
func (d *MemoryStaffDirectory) Put(s staff.Staff) {
	d.mu.Lock()
	d.staff[s.ID] = s
	d.mu.Unlock()
}

func (d *MemoryStaffDirectory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]staff.Staff, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[uuid.UUID]staff.Staff, len(ids))
	for _, id := range ids {
		if s, ok := d.staff[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}
