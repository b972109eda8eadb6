package proxy

import (
	"context"
	"errors"
	"sync"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/repository"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
)

// roster is an immutable snapshot of one chat's membership.
type roster struct {
	kind   chat.Kind
	active bool
	roles  map[uuid.UUID]chat.Role
}

func rosterOf(c chat.Chat) *roster {
	r := &roster{
		kind:   c.Kind,
		active: c.IsActive,
		roles:  make(map[uuid.UUID]chat.Role, len(c.Members)),
	}
	for _, m := range c.Members {
		r.roles[m.StaffID] = m.Role
	}
	return r
}

// AccessControl answers membership questions from an in-memory index keyed
// by chat id. Writers call Remember with the committed chat while holding
// the chat's lock; readers fill misses from the repository without
// overwriting a newer snapshot.
type AccessControl struct {
	chats repository.ChatRepository

	mu      sync.RWMutex
	rosters map[uuid.UUID]*roster
}

func NewAccessControl(chats repository.ChatRepository) *AccessControl {
	return &AccessControl{
		chats:   chats,
		rosters: make(map[uuid.UUID]*roster),
	}
}

// Remember replaces the snapshot for c.
func (a *AccessControl) Remember(c chat.Chat) {
	r := rosterOf(c)
	a.mu.Lock()
	a.rosters[c.ID] = r
	a.mu.Unlock()
}

func (a *AccessControl) load(ctx context.Context, chatID uuid.UUID) (*roster, error) {
	a.mu.RLock()
	r, ok := a.rosters[chatID]
	a.mu.RUnlock()
	if ok {
		return r, nil
	}

	c, err := a.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, salon_errors.ErrNotFound) {
			return nil, salon_errors.NotFound("chat not found")
		}
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.rosters[chatID]; ok {
		return existing, nil
	}
	r = rosterOf(c)
	a.rosters[chatID] = r
	return r, nil
}

func (a *AccessControl) member(ctx context.Context, staffID, chatID uuid.UUID) (*roster, chat.Role, error) {
	r, err := a.load(ctx, chatID)
	if err != nil {
		return nil, "", err
	}
	if !r.active {
		return nil, "", salon_errors.NotFound("chat not found")
	}
	role, ok := r.roles[staffID]
	if !ok {
		return nil, "", salon_errors.Authorization("not a member of this chat")
	}
	return r, role, nil
}

// CanViewChat requires staffID to be a member of the active chat.
func (a *AccessControl) CanViewChat(ctx context.Context, staffID, chatID uuid.UUID) (chat.Kind, error) {
	r, _, err := a.member(ctx, staffID, chatID)
	if err != nil {
		return "", err
	}
	return r.kind, nil
}
