package presence

import (
	"context"
	"sync"
	"time"

	"salon-chat/internal/metrics"

	"github.com/google/uuid"
)

// DefaultTypingTTL clears a typing indicator the client never stopped.
const DefaultTypingTTL = 8 * time.Second

type typingKey struct {
	chatID  uuid.UUID
	staffID uuid.UUID
}

// TypingEntry identifies one staff member typing in one chat.
type TypingEntry struct {
	ChatID  uuid.UUID
	StaffID uuid.UUID
}

// Registry tracks live connections and typing state for this process.
type Registry struct {
	mu     sync.Mutex
	conns  map[uuid.UUID]map[string]struct{}
	typing map[typingKey]time.Time

	ttl   time.Duration
	clock func() time.Time
}

func NewRegistry(typingTTL time.Duration) *Registry {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	return &Registry{
		conns:  make(map[uuid.UUID]map[string]struct{}),
		typing: make(map[typingKey]time.Time),
		ttl:    typingTTL,
		clock:  time.Now,
	}
}

// Register adds a connection and reports whether the staff member just
// came online.
func (r *Registry) Register(staffID uuid.UUID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[staffID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[staffID] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}
	if len(set) == 1 {
		metrics.OnlineStaff.Inc()
		return true
	}
	return false
}

// Unregister removes a connection and reports whether it was the staff
// member's last one. Unknown connections are ignored.
func (r *Registry) Unregister(staffID uuid.UUID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[staffID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(r.conns, staffID)
	metrics.OnlineStaff.Dec()
	return true
}

func (r *Registry) IsOnline(staffID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[staffID]) > 0
}

func (r *Registry) OnlineStaff() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// StartTyping refreshes the typing deadline and reports whether the staff
// member was not already typing in the chat.
func (r *Registry) StartTyping(chatID, staffID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := typingKey{chatID, staffID}
	_, already := r.typing[key]
	r.typing[key] = r.clock().Add(r.ttl)
	return !already
}

// StopTyping reports whether a typing entry was removed.
func (r *Registry) StopTyping(chatID, staffID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := typingKey{chatID, staffID}
	if _, ok := r.typing[key]; !ok {
		return false
	}
	delete(r.typing, key)
	return true
}

// ClearStaff drops every typing entry of staffID and returns them.
func (r *Registry) ClearStaff(staffID uuid.UUID) []TypingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []TypingEntry
	for key := range r.typing {
		if key.staffID == staffID {
			delete(r.typing, key)
			out = append(out, TypingEntry{ChatID: key.chatID, StaffID: key.staffID})
		}
	}
	return out
}

// Expire removes entries past their deadline and returns them.
func (r *Registry) Expire() []TypingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	var out []TypingEntry
	for key, deadline := range r.typing {
		if !now.Before(deadline) {
			delete(r.typing, key)
			out = append(out, TypingEntry{ChatID: key.chatID, StaffID: key.staffID})
		}
	}
	return out
}

// Run expires typing entries until ctx is done, handing each batch to
// onExpired.
func (r *Registry) Run(ctx context.Context, onExpired func([]TypingEntry)) error {
	interval := r.ttl / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if expired := r.Expire(); len(expired) > 0 && onExpired != nil {
				onExpired(expired)
			}
		}
	}
}
