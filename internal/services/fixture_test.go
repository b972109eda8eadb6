package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/staff"
	"salon-chat/internal/events"
	"salon-chat/internal/proxy"
	"salon-chat/internal/repository"
	"salon-chat/pkg/logger"

	"github.com/google/uuid"
)

type sent struct {
	chatID uuid.UUID
	staff  uuid.UUID
	evt    events.Event
	except []uuid.UUID
}

// recordingBus captures every broadcaster call.
type recordingBus struct {
	mu      sync.Mutex
	toChat  []sent
	toStaff []sent
	joined  map[uuid.UUID][]uuid.UUID
	evicted map[uuid.UUID][]uuid.UUID
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		joined:  make(map[uuid.UUID][]uuid.UUID),
		evicted: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (b *recordingBus) ToChat(chatID uuid.UUID, evt events.Event, except ...uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toChat = append(b.toChat, sent{chatID: chatID, evt: evt, except: except})
}

func (b *recordingBus) ToStaff(staffID uuid.UUID, evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toStaff = append(b.toStaff, sent{staff: staffID, evt: evt})
}

func (b *recordingBus) JoinRoom(chatID uuid.UUID, staffIDs ...uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined[chatID] = append(b.joined[chatID], staffIDs...)
}

func (b *recordingBus) EvictFromRoom(chatID uuid.UUID, staffID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted[chatID] = append(b.evicted[chatID], staffID)
}

// chatEvents returns the events of type typ broadcast to chatID, in order.
func (b *recordingBus) chatEvents(chatID uuid.UUID, typ string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, s := range b.toChat {
		if s.chatID == chatID && s.evt.Type == typ {
			out = append(out, s.evt)
		}
	}
	return out
}

func (b *recordingBus) staffEvents(staffID uuid.UUID, typ string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, s := range b.toStaff {
		if s.staff == staffID && s.evt.Type == typ {
			out = append(out, s.evt)
		}
	}
	return out
}

func (b *recordingBus) wasEvicted(chatID, staffID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.evicted[chatID] {
		if id == staffID {
			return true
		}
	}
	return false
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (f fakeLimiter) AllowSend(context.Context, string) (bool, error) {
	return f.allow, f.err
}

type fixture struct {
	store    *repository.MemoryStore
	dir      *repository.MemoryStaffDirectory
	bus      *recordingBus
	chats    *ChatService
	reads    *ReadService
	messages *MessageService
	staff    []uuid.UUID
}

type fixtureOptions struct {
	staff               int
	limiter             SendLimiter
	markReadOnFirstPage bool
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	if opts.staff == 0 {
		opts.staff = 5
	}

	f := &fixture{
		store: repository.NewMemoryStore(),
		dir:   repository.NewMemoryStaffDirectory(),
		bus:   newRecordingBus(),
	}
	for i := 0; i < opts.staff; i++ {
		id := uuid.New()
		f.dir.Put(staff.Staff{ID: id, Name: fmt.Sprintf("staff-%d", i), Role: "stylist", IsActive: true})
		f.staff = append(f.staff, id)
	}

	log := logger.NewNop()
	locks := NewKeyedMutex()
	chatRepo, messageRepo := f.store.Chats(), f.store.Messages()

	f.chats = NewChatService(chatRepo, f.dir, proxy.NewAccessControl(chatRepo), locks, f.bus, log)
	f.reads = NewReadService(chatRepo, messageRepo, f.chats, f.bus)
	f.messages = NewMessageService(messageRepo, f.chats, f.reads, locks, f.bus, log, MessageServiceOptions{
		Limiter:             opts.limiter,
		MarkReadOnFirstPage: opts.markReadOnFirstPage,
	})
	f.chats.SetSystemPoster(f.messages)
	return f
}

func (f *fixture) group(t *testing.T, creator uuid.UUID, members ...uuid.UUID) chat.Chat {
	t.Helper()
	c, created, err := f.chats.CreateChat(context.Background(), CreateChatInput{
		Kind:      chat.KindGroup,
		CreatorID: creator,
		MemberIDs: members,
		Name:      "Front desk",
	})
	if err != nil || !created {
		t.Fatalf("create group: created=%v err=%v", created, err)
	}
	return c
}

func (f *fixture) direct(t *testing.T, a, b uuid.UUID) chat.Chat {
	t.Helper()
	c, _, err := f.chats.CreateChat(context.Background(), CreateChatInput{
		Kind:      chat.KindOneToOne,
		CreatorID: a,
		MemberIDs: []uuid.UUID{b},
	})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	return c
}

func (f *fixture) send(t *testing.T, chatID, sender uuid.UUID, content string) {
	t.Helper()
	if _, err := f.messages.Send(context.Background(), SendInput{ChatID: chatID, SenderID: sender, Content: content}); err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
}

func (f *fixture) memberCount(t *testing.T, chatID uuid.UUID) int {
	t.Helper()
	c, err := f.store.Chats().GetByID(context.Background(), chatID)
	if err != nil {
		t.Fatalf("load chat: %v", err)
	}
	return len(c.Members)
}
