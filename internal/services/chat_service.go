package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/staff"
	"salon-chat/internal/events"
	"salon-chat/internal/proxy"
	"salon-chat/internal/repository"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"
	"salon-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatService struct {
	chats  repository.ChatRepository
	staff  repository.StaffDirectory
	access *proxy.AccessControl
	locks  *KeyedMutex
	bus    Broadcaster
	system SystemPoster
	log    *logger.Logger
}

type CreateChatInput struct {
	Kind        chat.Kind
	CreatorID   uuid.UUID
	MemberIDs   []uuid.UUID
	Name        string
	Description string
	Avatar      string
}

// UpdateChatInput leaves nil fields unchanged.
type UpdateChatInput struct {
	Name        *string
	Description *string
	Avatar      *string
}

func NewChatService(chats repository.ChatRepository, staffDir repository.StaffDirectory, access *proxy.AccessControl, locks *KeyedMutex, bus Broadcaster, log *logger.Logger) *ChatService {
	if bus == nil {
		bus = NopBroadcaster{}
	}
	return &ChatService{
		chats:  chats,
		staff:  staffDir,
		access: access,
		locks:  locks,
		bus:    bus,
		log:    log,
	}
}

// SetSystemPoster wires the message store used for system messages.
func (s *ChatService) SetSystemPoster(p SystemPoster) {
	s.system = p
}

// CreateChat returns the chat and whether it was newly created. A second
// one_to_one request for the same pair returns the existing chat.
func (s *ChatService) CreateChat(ctx context.Context, in CreateChatInput) (chat.Chat, bool, error) {
	if !in.Kind.Valid() {
		return chat.Chat{}, false, salon_errors.Validation("kind must be one_to_one or group")
	}
	others := uniqueIDs(in.MemberIDs, in.CreatorID)

	switch in.Kind {
	case chat.KindOneToOne:
		if len(others) != 1 {
			return chat.Chat{}, false, salon_errors.Validation("a direct chat needs exactly one other member")
		}
		return s.createDirect(ctx, in.CreatorID, others[0])
	default:
		c, err := s.createGroup(ctx, in, others)
		return c, err == nil, err
	}
}

func (s *ChatService) createDirect(ctx context.Context, creatorID, otherID uuid.UUID) (chat.Chat, bool, error) {
	if _, err := s.validateStaff(ctx, []uuid.UUID{otherID}); err != nil {
		return chat.Chat{}, false, err
	}

	key := chat.PairKeyFor(creatorID, otherID)
	unlock := s.locks.Lock(pairKey(key))
	defer unlock()

	existing, err := s.chats.GetActiveByPairKey(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, salon_errors.ErrNotFound) {
		return chat.Chat{}, false, err
	}

	now := time.Now().UTC()
	c := chat.Chat{
		ID:        uuid.New(),
		Kind:      chat.KindOneToOne,
		CreatedBy: creatorID,
		PairKey:   sql.NullString{String: key, Valid: true},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Members = []chat.Member{
		{ChatID: c.ID, StaffID: creatorID, Role: chat.RoleMember, JoinedAt: now},
		{ChatID: c.ID, StaffID: otherID, Role: chat.RoleMember, JoinedAt: now},
	}

	if err := s.chats.Create(ctx, &c); err != nil {
		// Another process won the race on the pair index.
		if errors.Is(err, salon_errors.ErrAlreadyExists) {
			existing, getErr := s.chats.GetActiveByPairKey(ctx, key)
			return existing, false, getErr
		}
		return chat.Chat{}, false, err
	}

	s.access.Remember(c)
	s.announceCreated(c, c.MemberIDs())
	return c, true, nil
}

func (s *ChatService) createGroup(ctx context.Context, in CreateChatInput, others []uuid.UUID) (chat.Chat, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return chat.Chat{}, salon_errors.Validation("group name is required")
	}
	if len(others) == 0 {
		return chat.Chat{}, salon_errors.Validation("a group needs at least one other member")
	}
	if _, err := s.validateStaff(ctx, others); err != nil {
		return chat.Chat{}, err
	}

	now := time.Now().UTC()
	c := chat.Chat{
		ID:          uuid.New(),
		Kind:        chat.KindGroup,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Avatar:      strings.TrimSpace(in.Avatar),
		CreatedBy:   in.CreatorID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Members = append(c.Members, chat.Member{ChatID: c.ID, StaffID: in.CreatorID, Role: chat.RoleAdmin, JoinedAt: now})
	for _, id := range others {
		c.Members = append(c.Members, chat.Member{ChatID: c.ID, StaffID: id, Role: chat.RoleMember, JoinedAt: now})
	}

	if err := s.chats.Create(ctx, &c); err != nil {
		return chat.Chat{}, err
	}

	s.access.Remember(c)
	s.announceCreated(c, c.MemberIDs())
	s.postSystem(ctx, c.ID, in.CreatorID, fmt.Sprintf("%s created the group %q", s.displayName(ctx, in.CreatorID), name))
	return c, nil
}

func (s *ChatService) AddMembers(ctx context.Context, chatID, requesterID uuid.UUID, memberIDs []uuid.UUID) (chat.Chat, error) {
	requested := uniqueIDs(memberIDs, uuid.Nil)
	if len(requested) == 0 {
		return chat.Chat{}, salon_errors.Validation("member_ids is required")
	}

	var (
		c     chat.Chat
		added []uuid.UUID
	)
	err := s.withChatLock(chatID, func() error {
		var err error
		if c, err = s.loadActive(ctx, chatID); err != nil {
			return err
		}
		if err := requireGroupAdmin(c, requesterID); err != nil {
			return err
		}
		for _, id := range requested {
			if !c.HasMember(id) {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			return salon_errors.Validation("all members are already present")
		}
		if _, err := s.validateStaff(ctx, added); err != nil {
			return err
		}

		now := time.Now().UTC()
		members := make([]chat.Member, 0, len(added))
		for _, id := range added {
			members = append(members, chat.Member{ChatID: c.ID, StaffID: id, Role: chat.RoleMember, JoinedAt: now})
		}
		if err := s.chats.AddMembers(ctx, members); err != nil {
			return err
		}
		c.Members = append(c.Members, members...)
		s.access.Remember(c)

		s.announceCreated(c, added)
		s.bus.ToChat(c.ID, events.ForChat(events.ChatUpdated, c.ID, httpdto.FromChat(c)), added...)
		return nil
	})
	if err != nil {
		return chat.Chat{}, err
	}

	s.postSystem(ctx, c.ID, requesterID, fmt.Sprintf("%s added %s", s.displayName(ctx, requesterID), s.displayNames(ctx, added)))
	return c, nil
}

func (s *ChatService) RemoveMember(ctx context.Context, chatID, requesterID, memberID uuid.UUID) (chat.Chat, error) {
	var c chat.Chat
	err := s.withChatLock(chatID, func() error {
		var err error
		if c, err = s.loadActive(ctx, chatID); err != nil {
			return err
		}
		if err := requireGroupAdmin(c, requesterID); err != nil {
			return err
		}
		target := c.Member(memberID)
		if target == nil {
			return salon_errors.NotFound("member not found")
		}
		if target.Role == chat.RoleAdmin {
			return salon_errors.Validation("cannot remove an admin, demote them first")
		}
		if err := s.chats.RemoveMember(ctx, c.ID, memberID); err != nil {
			return err
		}
		c.Members = withoutMember(c.Members, memberID)
		s.access.Remember(c)

		s.detach(c.ID, memberID)
		s.bus.ToChat(c.ID, events.ForChat(events.ChatUpdated, c.ID, httpdto.FromChat(c)))
		return nil
	})
	if err != nil {
		return chat.Chat{}, err
	}

	s.postSystem(ctx, c.ID, requesterID, fmt.Sprintf("%s removed %s", s.displayName(ctx, requesterID), s.displayName(ctx, memberID)))
	return c, nil
}

func (s *ChatService) LeaveChat(ctx context.Context, chatID, requesterID uuid.UUID) error {
	err := s.withChatLock(chatID, func() error {
		c, err := s.loadActive(ctx, chatID)
		if err != nil {
			return err
		}
		me := c.Member(requesterID)
		if me == nil {
			return salon_errors.Authorization("not a member of this chat")
		}
		if c.Kind == chat.KindOneToOne {
			return salon_errors.Validation("a direct chat cannot be left, delete it instead")
		}
		if me.Role == chat.RoleAdmin && c.AdminCount() == 1 {
			return salon_errors.Validation("the sole admin cannot leave, promote another admin first")
		}
		if err := s.chats.RemoveMember(ctx, c.ID, requesterID); err != nil {
			return err
		}
		c.Members = withoutMember(c.Members, requesterID)
		s.access.Remember(c)

		s.detach(c.ID, requesterID)
		s.bus.ToChat(c.ID, events.ForChat(events.ChatUpdated, c.ID, httpdto.FromChat(c)))
		return nil
	})
	if err != nil {
		return err
	}

	s.postSystem(ctx, chatID, requesterID, fmt.Sprintf("%s left the group", s.displayName(ctx, requesterID)))
	return nil
}

func (s *ChatService) UpdateChat(ctx context.Context, chatID, requesterID uuid.UUID, in UpdateChatInput) (chat.Chat, error) {
	if in.Name == nil && in.Description == nil && in.Avatar == nil {
		return chat.Chat{}, salon_errors.Validation("nothing to update")
	}

	var (
		c       chat.Chat
		renamed bool
	)
	err := s.withChatLock(chatID, func() error {
		var err error
		if c, err = s.loadActive(ctx, chatID); err != nil {
			return err
		}
		if err := requireGroupAdmin(c, requesterID); err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return salon_errors.Validation("group name cannot be empty")
			}
			renamed = name != c.Name
			c.Name = name
		}
		if in.Description != nil {
			c.Description = strings.TrimSpace(*in.Description)
		}
		if in.Avatar != nil {
			c.Avatar = strings.TrimSpace(*in.Avatar)
		}
		if err := s.chats.Update(ctx, c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()
		s.access.Remember(c)

		s.bus.ToChat(c.ID, events.ForChat(events.ChatUpdated, c.ID, httpdto.FromChat(c)))
		return nil
	})
	if err != nil {
		return chat.Chat{}, err
	}

	if renamed {
		s.postSystem(ctx, c.ID, requesterID, fmt.Sprintf("%s renamed the group to %q", s.displayName(ctx, requesterID), c.Name))
	}
	return c, nil
}

// Deactivate soft-deletes the chat. Groups require an admin, direct chats
// any member.
func (s *ChatService) Deactivate(ctx context.Context, chatID, requesterID uuid.UUID) error {
	return s.withChatLock(chatID, func() error {
		c, err := s.loadActive(ctx, chatID)
		if err != nil {
			return err
		}
		if !c.HasMember(requesterID) {
			return salon_errors.Authorization("not a member of this chat")
		}
		if c.Kind == chat.KindGroup && !c.IsAdmin(requesterID) {
			return salon_errors.Authorization("only group admins can delete the group")
		}
		c.IsActive = false
		if err := s.chats.Update(ctx, c); err != nil {
			return err
		}
		s.access.Remember(c)

		s.bus.ToChat(c.ID, events.ForChat(events.ChatUpdated, c.ID, httpdto.FromChat(c)))
		for _, id := range c.MemberIDs() {
			s.bus.EvictFromRoom(c.ID, id)
		}
		return nil
	})
}

// SetMemberRole promotes or demotes a group member. The last admin cannot
// be demoted.
func (s *ChatService) SetMemberRole(ctx context.Context, chatID, requesterID, memberID uuid.UUID, role chat.Role) (chat.Chat, error) {
	if role != chat.RoleAdmin && role != chat.RoleMember {
		return chat.Chat{}, salon_errors.Validation("role must be admin or member")
	}

	var c chat.Chat
	err := s.withChatLock(chatID, func() error {
		var err error
		if c, err = s.loadActive(ctx, chatID); err != nil {
			return err
		}
		if err := requireGroupAdmin(c, requesterID); err != nil {
			return err
		}
		target := c.Member(memberID)
		if target == nil {
			return salon_errors.NotFound("member not found")
		}
		if target.Role == role {
			return nil
		}
		if target.Role == chat.RoleAdmin && c.AdminCount() == 1 {
			return salon_errors.Validation("a group needs at least one admin")
		}
		updated := *target
		updated.Role = role
		if err := s.chats.UpdateMember(ctx, updated); err != nil {
			return err
		}
		target.Role = role
		s.access.Remember(c)

		s.bus.ToChat(c.ID, events.ForChat(events.ChatUpdated, c.ID, httpdto.FromChat(c)))
		return nil
	})
	if err != nil {
		return chat.Chat{}, err
	}
	return c, nil
}

// SetMuted changes the caller's own mute flag for a chat.
func (s *ChatService) SetMuted(ctx context.Context, chatID, staffID uuid.UUID, muted bool) (chat.Member, error) {
	var m chat.Member
	err := s.withChatLock(chatID, func() error {
		c, err := s.loadActive(ctx, chatID)
		if err != nil {
			return err
		}
		me := c.Member(staffID)
		if me == nil {
			return salon_errors.Authorization("not a member of this chat")
		}
		m = *me
		m.Muted = muted
		return s.chats.UpdateMember(ctx, m)
	})
	return m, err
}

func (s *ChatService) GetChat(ctx context.Context, chatID, staffID uuid.UUID) (chat.Chat, error) {
	c, err := s.loadActive(ctx, chatID)
	if err != nil {
		return chat.Chat{}, err
	}
	if !c.HasMember(staffID) {
		return chat.Chat{}, salon_errors.Authorization("not a member of this chat")
	}
	return c, nil
}

func (s *ChatService) ListChats(ctx context.Context, staffID uuid.UUID) ([]chat.Chat, error) {
	return s.chats.ListActiveForStaff(ctx, staffID)
}

func (s *ChatService) ListMembers(ctx context.Context, chatID, staffID uuid.UUID) ([]chat.Member, error) {
	c, err := s.GetChat(ctx, chatID, staffID)
	if err != nil {
		return nil, err
	}
	return c.Members, nil
}

// MemberChatIDs lists the active chats a connection subscribes to.
func (s *ChatService) MemberChatIDs(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error) {
	return s.chats.ActiveChatIDsForStaff(ctx, staffID)
}

// SubscribeMember calls subscribe while holding the chat lock, once staffID
// is confirmed as a member of the active chat. A concurrent removal either
// fails this check or runs after subscribe and evicts the subscription.
func (s *ChatService) SubscribeMember(ctx context.Context, chatID, staffID uuid.UUID, subscribe func()) error {
	return s.withChatLock(chatID, func() error {
		c, err := s.loadActive(ctx, chatID)
		if err != nil {
			return err
		}
		if !c.HasMember(staffID) {
			return salon_errors.Authorization("not a member of this chat")
		}
		subscribe()
		return nil
	})
}

// RequireMember checks membership of an active chat through the index.
func (s *ChatService) RequireMember(ctx context.Context, chatID, staffID uuid.UUID) error {
	_, err := s.access.CanViewChat(ctx, staffID, chatID)
	return err
}

// Contacts returns every staff member sharing an active chat with staffID.
func (s *ChatService) Contacts(ctx context.Context, staffID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	chats, err := s.chats.ListActiveForStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]struct{})
	for _, c := range chats {
		for _, m := range c.Members {
			if m.StaffID != staffID {
				out[m.StaffID] = struct{}{}
			}
		}
	}
	return out, nil
}

func (s *ChatService) withChatLock(chatID uuid.UUID, fn func() error) error {
	unlock := s.locks.Lock(chatKey(chatID))
	defer unlock()
	return fn()
}

func (s *ChatService) loadActive(ctx context.Context, chatID uuid.UUID) (chat.Chat, error) {
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, salon_errors.ErrNotFound) {
			return chat.Chat{}, salon_errors.NotFound("chat not found")
		}
		return chat.Chat{}, err
	}
	if !c.IsActive {
		return chat.Chat{}, salon_errors.NotFound("chat not found")
	}
	return c, nil
}

func requireGroupAdmin(c chat.Chat, staffID uuid.UUID) error {
	if !c.HasMember(staffID) {
		return salon_errors.Authorization("not a member of this chat")
	}
	if c.Kind != chat.KindGroup {
		return salon_errors.Validation("only group chats support this")
	}
	if !c.IsAdmin(staffID) {
		return salon_errors.Authorization("only group admins can do this")
	}
	return nil
}

// validateStaff requires every id to resolve to an active staff record.
func (s *ChatService) validateStaff(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]staff.Staff, error) {
	found, err := s.staff.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		rec, ok := found[id]
		if !ok {
			return nil, salon_errors.NotFound("staff %s not found", id)
		}
		if !rec.IsActive {
			return nil, salon_errors.Validation("staff %s is not active", id)
		}
	}
	return found, nil
}

// announceCreated subscribes the recipients' live connections and tells
// each of them about the chat.
func (s *ChatService) announceCreated(c chat.Chat, recipients []uuid.UUID) {
	s.bus.JoinRoom(c.ID, recipients...)
	evt := events.ForChat(events.ChatCreated, c.ID, httpdto.FromChat(c))
	for _, id := range recipients {
		s.bus.ToStaff(id, evt)
	}
}

func (s *ChatService) detach(chatID, staffID uuid.UUID) {
	s.bus.EvictFromRoom(chatID, staffID)
	s.bus.ToStaff(staffID, events.ForChat(events.RemovedFromChat, chatID, httpdto.ChatIDPayload{ChatID: chatID.String()}))
}

func (s *ChatService) postSystem(ctx context.Context, chatID, actorID uuid.UUID, content string) {
	if s.system == nil {
		return
	}
	if err := s.system.PostSystem(ctx, chatID, actorID, content); err != nil {
		s.log.WithContext(ctx).Warn("system message not recorded",
			zap.String("chat_id", chatID.String()),
			zap.Error(err),
		)
	}
}

func (s *ChatService) displayName(ctx context.Context, id uuid.UUID) string {
	found, err := s.staff.Lookup(ctx, []uuid.UUID{id})
	if err == nil {
		if rec, ok := found[id]; ok && rec.Name != "" {
			return rec.Name
		}
	}
	return id.String()
}

func (s *ChatService) displayNames(ctx context.Context, ids []uuid.UUID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, s.displayName(ctx, id))
	}
	return strings.Join(names, ", ")
}

// uniqueIDs drops nil, duplicate and excluded ids, keeping first-seen order.
func uniqueIDs(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func withoutMember(members []chat.Member, staffID uuid.UUID) []chat.Member {
	out := make([]chat.Member, 0, len(members))
	for _, m := range members {
		if m.StaffID != staffID {
			out = append(out, m)
		}
	}
	return out
}
