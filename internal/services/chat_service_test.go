package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/staff"
	"salon-chat/internal/events"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
)

func TestCreateDirectChatIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	a, b := f.staff[0], f.staff[1]

	first, created, err := f.chats.CreateChat(ctx, CreateChatInput{Kind: chat.KindOneToOne, CreatorID: a, MemberIDs: []uuid.UUID{b}})
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	// The reversed pair resolves to the same chat.
	second, created, err := f.chats.CreateChat(ctx, CreateChatInput{Kind: chat.KindOneToOne, CreatorID: b, MemberIDs: []uuid.UUID{a}})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Error("second create reported a new chat")
	}
	if second.ID != first.ID {
		t.Errorf("second create returned %s, want %s", second.ID, first.ID)
	}
	if got := f.memberCount(t, first.ID); got != 2 {
		t.Errorf("member count = %d, want 2", got)
	}
}

func TestCreateDirectChatConcurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	a, b := f.staff[0], f.staff[1]

	const callers = 16
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creator, other := a, b
			if i%2 == 1 {
				creator, other = b, a
			}
			c, _, err := f.chats.CreateChat(context.Background(), CreateChatInput{Kind: chat.KindOneToOne, CreatorID: creator, MemberIDs: []uuid.UUID{other}})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		if id != ids[0] {
			t.Fatalf("caller %d got chat %s, want %s", i, id, ids[0])
		}
	}
}

func TestCreateChatValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	a, b, c := f.staff[0], f.staff[1], f.staff[2]
	inactive := uuid.New()
	f.dir.Put(staff.Staff{ID: inactive, Name: "gone", IsActive: false})

	tests := []struct {
		name string
		in   CreateChatInput
		want salon_errors.Kind
	}{
		{"unknown kind", CreateChatInput{Kind: "broadcast", CreatorID: a, MemberIDs: []uuid.UUID{b}}, salon_errors.KindValidation},
		{"direct with self only", CreateChatInput{Kind: chat.KindOneToOne, CreatorID: a, MemberIDs: []uuid.UUID{a}}, salon_errors.KindValidation},
		{"direct with two others", CreateChatInput{Kind: chat.KindOneToOne, CreatorID: a, MemberIDs: []uuid.UUID{b, c}}, salon_errors.KindValidation},
		{"direct with unknown staff", CreateChatInput{Kind: chat.KindOneToOne, CreatorID: a, MemberIDs: []uuid.UUID{uuid.New()}}, salon_errors.KindNotFound},
		{"group without name", CreateChatInput{Kind: chat.KindGroup, CreatorID: a, MemberIDs: []uuid.UUID{b}, Name: "  "}, salon_errors.KindValidation},
		{"group without members", CreateChatInput{Kind: chat.KindGroup, CreatorID: a, Name: "Team"}, salon_errors.KindValidation},
		{"group with unknown staff", CreateChatInput{Kind: chat.KindGroup, CreatorID: a, MemberIDs: []uuid.UUID{b, uuid.New()}, Name: "Team"}, salon_errors.KindNotFound},
		{"group with inactive staff", CreateChatInput{Kind: chat.KindGroup, CreatorID: a, MemberIDs: []uuid.UUID{inactive}, Name: "Team"}, salon_errors.KindValidation},
	}
	for _, tt := range tests {
		_, _, err := f.chats.CreateChat(context.Background(), tt.in)
		if got := salon_errors.KindOf(err); got != tt.want {
			t.Errorf("%s: kind = %q, want %q (err=%v)", tt.name, got, tt.want, err)
		}
	}
}

func TestCreateGroupSeedsCreatorAsAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	a, b, c := f.staff[0], f.staff[1], f.staff[2]

	g := f.group(t, a, b, c, b)

	if len(g.Members) != 3 {
		t.Fatalf("members = %d, want 3", len(g.Members))
	}
	admins := g.Admins()
	if len(admins) != 1 || admins[0] != a {
		t.Errorf("admins = %v, want [%s]", admins, a)
	}
	for _, id := range []uuid.UUID{a, b, c} {
		if got := f.bus.staffEvents(id, events.ChatCreated); len(got) != 1 {
			t.Errorf("staff %s got %d chat_created events, want 1", id, len(got))
		}
	}
	if got := len(f.bus.joined[g.ID]); got != 3 {
		t.Errorf("joined %d connections to the room, want 3", got)
	}
}

func TestRemoveMemberEvictsFromRoom(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, m, other := f.staff[0], f.staff[1], f.staff[2]
	g := f.group(t, admin, m, other)

	updated, err := f.chats.RemoveMember(ctx, g.ID, admin, m)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(updated.Members) != 2 {
		t.Errorf("returned members = %d, want 2", len(updated.Members))
	}
	if got := f.memberCount(t, g.ID); got != 2 {
		t.Errorf("stored members = %d, want 2", got)
	}
	if !f.bus.wasEvicted(g.ID, m) {
		t.Error("removed member was not evicted from the room")
	}
	if got := f.bus.staffEvents(m, events.RemovedFromChat); len(got) != 1 {
		t.Errorf("removed_from_chat events = %d, want 1", len(got))
	}

	// The removed member loses access straight away.
	if err := f.chats.RequireMember(ctx, g.ID, m); !errors.Is(err, salon_errors.ErrForbidden) {
		t.Errorf("RequireMember after removal = %v, want forbidden", err)
	}
	if _, err := f.messages.Send(ctx, SendInput{ChatID: g.ID, SenderID: m, Content: "still here?"}); !errors.Is(err, salon_errors.ErrForbidden) {
		t.Errorf("send after removal = %v, want forbidden", err)
	}
}

func TestRemoveMemberRules(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b, c := f.staff[0], f.staff[1], f.staff[2]
	g := f.group(t, admin, b, c)
	d := f.direct(t, admin, b)

	tests := []struct {
		name                      string
		chatID, requester, target uuid.UUID
		want                      salon_errors.Kind
	}{
		{"non-admin requester", g.ID, b, c, salon_errors.KindAuthorization},
		{"admin target", g.ID, admin, admin, salon_errors.KindValidation},
		{"absent target", g.ID, admin, f.staff[4], salon_errors.KindNotFound},
		{"direct chat", d.ID, admin, b, salon_errors.KindValidation},
		{"unknown chat", uuid.New(), admin, b, salon_errors.KindNotFound},
	}
	for _, tt := range tests {
		_, err := f.chats.RemoveMember(ctx, tt.chatID, tt.requester, tt.target)
		if got := salon_errors.KindOf(err); got != tt.want {
			t.Errorf("%s: kind = %q, want %q (err=%v)", tt.name, got, tt.want, err)
		}
	}
	if got := f.memberCount(t, g.ID); got != 3 {
		t.Errorf("members after rejected removals = %d, want 3", got)
	}
}

func TestSoleAdminCannotLeave(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin := f.staff[0]
	g := f.group(t, admin, f.staff[1], f.staff[2], f.staff[3])

	err := f.chats.LeaveChat(ctx, g.ID, admin)
	if got := salon_errors.KindOf(err); got != salon_errors.KindValidation {
		t.Fatalf("leave kind = %q, want validation (err=%v)", got, err)
	}
	if got := f.memberCount(t, g.ID); got != 4 {
		t.Errorf("members = %d, want 4", got)
	}
}

func TestLeaveChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b, c := f.staff[0], f.staff[1], f.staff[2]
	g := f.group(t, admin, b, c)

	if err := f.chats.LeaveChat(ctx, g.ID, b); err != nil {
		t.Fatalf("member leave: %v", err)
	}
	if !f.bus.wasEvicted(g.ID, b) {
		t.Error("leaving member was not evicted")
	}

	// With a second admin the first may leave.
	if _, err := f.chats.SetMemberRole(ctx, g.ID, admin, c, chat.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := f.chats.LeaveChat(ctx, g.ID, admin); err != nil {
		t.Fatalf("admin leave: %v", err)
	}
	stored, err := f.store.Chats().GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.Members) != 1 || stored.Members[0].StaffID != c || !stored.IsAdmin(c) {
		t.Errorf("remaining members = %+v, want only admin %s", stored.Members, c)
	}

	d := f.direct(t, admin, b)
	if err := f.chats.LeaveChat(ctx, d.ID, admin); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("leave direct = %v, want validation", err)
	}
	if err := f.chats.LeaveChat(ctx, g.ID, f.staff[4]); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("leave as outsider = %v, want authorization", err)
	}
}

func TestAddMembers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b, c, d := f.staff[0], f.staff[1], f.staff[2], f.staff[3]
	g := f.group(t, admin, b)

	// Full overlap is rejected.
	if _, err := f.chats.AddMembers(ctx, g.ID, admin, []uuid.UUID{b, admin}); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("full overlap = %v, want validation", err)
	}
	if _, err := f.chats.AddMembers(ctx, g.ID, b, []uuid.UUID{c}); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("non-admin add = %v, want authorization", err)
	}
	if _, err := f.chats.AddMembers(ctx, g.ID, admin, []uuid.UUID{uuid.New()}); salon_errors.KindOf(err) != salon_errors.KindNotFound {
		t.Errorf("unknown staff = %v, want not found", err)
	}

	// Partial overlap adds only the new ids.
	updated, err := f.chats.AddMembers(ctx, g.ID, admin, []uuid.UUID{b, c, d, c})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(updated.Members) != 4 {
		t.Errorf("members = %d, want 4", len(updated.Members))
	}
	for _, id := range []uuid.UUID{c, d} {
		m := updated.Member(id)
		if m == nil || m.Role != chat.RoleMember {
			t.Errorf("new member %s = %+v, want role member", id, m)
		}
		if got := f.bus.staffEvents(id, events.ChatCreated); len(got) != 1 {
			t.Errorf("new member %s got %d chat_created, want 1", id, len(got))
		}
	}
	if err := f.chats.RequireMember(ctx, g.ID, d); err != nil {
		t.Errorf("new member cannot access chat: %v", err)
	}
}

func TestConcurrentAdminMutationsKeepInvariants(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{staff: 12})
	ctx := context.Background()
	admin, second := f.staff[0], f.staff[1]
	g := f.group(t, admin, second)
	if _, err := f.chats.SetMemberRole(ctx, g.ID, admin, second, chat.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}

	var wg sync.WaitGroup
	for i, id := range f.staff[2:] {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			requester := admin
			if i%2 == 1 {
				requester = second
			}
			if _, err := f.chats.AddMembers(ctx, g.ID, requester, []uuid.UUID{id}); err != nil {
				t.Errorf("add %s: %v", id, err)
			}
		}(i, id)
	}
	wg.Wait()

	// Both admins race to leave; exactly one may succeed.
	results := make(chan error, 2)
	for _, id := range []uuid.UUID{admin, second} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			results <- f.chats.LeaveChat(ctx, g.ID, id)
		}(id)
	}
	wg.Wait()
	close(results)

	left := 0
	for err := range results {
		if err == nil {
			left++
		}
	}
	if left != 1 {
		t.Errorf("%d admins left, want exactly 1", left)
	}

	stored, err := f.store.Chats().GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.AdminCount() < 1 {
		t.Error("group has no admin")
	}
	for _, id := range stored.Admins() {
		if !stored.HasMember(id) {
			t.Errorf("admin %s is not a member", id)
		}
	}
	if got := len(stored.Members); got != 11 {
		t.Errorf("members = %d, want 11", got)
	}
}

func TestSetMemberRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b := f.staff[0], f.staff[1]
	g := f.group(t, admin, b)

	if _, err := f.chats.SetMemberRole(ctx, g.ID, admin, admin, chat.RoleMember); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("demote last admin = %v, want validation", err)
	}
	if _, err := f.chats.SetMemberRole(ctx, g.ID, admin, b, "owner"); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("bad role = %v, want validation", err)
	}
	if _, err := f.chats.SetMemberRole(ctx, g.ID, b, b, chat.RoleAdmin); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("self promote = %v, want authorization", err)
	}

	updated, err := f.chats.SetMemberRole(ctx, g.ID, admin, b, chat.RoleAdmin)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !updated.IsAdmin(b) {
		t.Error("promoted member is not admin")
	}
	if _, err := f.chats.SetMemberRole(ctx, g.ID, b, admin, chat.RoleMember); err != nil {
		t.Errorf("demote with another admin present: %v", err)
	}
}

func TestUpdateChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b := f.staff[0], f.staff[1]
	g := f.group(t, admin, b)
	name, blank := "Colour team", " "

	if _, err := f.chats.UpdateChat(ctx, g.ID, admin, UpdateChatInput{}); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("empty update = %v, want validation", err)
	}
	if _, err := f.chats.UpdateChat(ctx, g.ID, b, UpdateChatInput{Name: &name}); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("non-admin update = %v, want authorization", err)
	}
	if _, err := f.chats.UpdateChat(ctx, g.ID, admin, UpdateChatInput{Name: &blank}); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("blank name = %v, want validation", err)
	}

	updated, err := f.chats.UpdateChat(ctx, g.ID, admin, UpdateChatInput{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name {
		t.Errorf("name = %q, want %q", updated.Name, name)
	}
	if got := f.bus.chatEvents(g.ID, events.ChatUpdated); len(got) == 0 {
		t.Error("no chat_updated broadcast")
	}

	d := f.direct(t, admin, b)
	if _, err := f.chats.UpdateChat(ctx, d.ID, admin, UpdateChatInput{Name: &name}); salon_errors.KindOf(err) != salon_errors.KindValidation {
		t.Errorf("update direct = %v, want validation", err)
	}
}

func TestDeactivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b, outsider := f.staff[0], f.staff[1], f.staff[4]
	g := f.group(t, admin, b)
	d := f.direct(t, admin, b)

	if err := f.chats.Deactivate(ctx, g.ID, b); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("non-admin delete group = %v, want authorization", err)
	}
	if err := f.chats.Deactivate(ctx, d.ID, outsider); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("outsider delete direct = %v, want authorization", err)
	}
	if err := f.chats.Deactivate(ctx, d.ID, b); err != nil {
		t.Fatalf("member delete direct: %v", err)
	}
	if _, err := f.chats.GetChat(ctx, d.ID, b); salon_errors.KindOf(err) != salon_errors.KindNotFound {
		t.Errorf("get deactivated = %v, want not found", err)
	}
	if err := f.chats.RequireMember(ctx, d.ID, admin); salon_errors.KindOf(err) != salon_errors.KindNotFound {
		t.Errorf("access to deactivated = %v, want not found", err)
	}

	// A fresh direct chat can be opened once the old one is gone.
	again, created, err := f.chats.CreateChat(ctx, CreateChatInput{Kind: chat.KindOneToOne, CreatorID: admin, MemberIDs: []uuid.UUID{b}})
	if err != nil || !created || again.ID == d.ID {
		t.Errorf("recreate direct: id=%s created=%v err=%v", again.ID, created, err)
	}

	list, err := f.chats.ListChats(ctx, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, c := range list {
		if c.ID == d.ID {
			t.Error("deactivated chat still listed")
		}
	}
}

func TestListChatsOrdersByLastMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	a := f.staff[0]
	first := f.direct(t, a, f.staff[1])
	second := f.direct(t, a, f.staff[2])
	f.direct(t, a, f.staff[3])

	f.send(t, second.ID, a, "older")
	f.send(t, first.ID, a, "newer")

	list, err := f.chats.ListChats(context.Background(), a)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("listed %d chats, want 3", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("order = [%s %s %s], want chats with messages first, newest first", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestSystemMessagesRecordMembershipChanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	admin, b, c := f.staff[0], f.staff[1], f.staff[2]
	g := f.group(t, admin, b)

	if _, err := f.chats.AddMembers(ctx, g.ID, admin, []uuid.UUID{c}); err != nil {
		t.Fatalf("add: %v", err)
	}
	page, err := f.messages.List(ctx, g.ID, admin, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 system messages", len(page.Messages))
	}
	for _, m := range page.Messages {
		if m.Type != "system" {
			t.Errorf("message %q has type %q, want system", m.Content, m.Type)
		}
	}
}

func TestContacts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	a, b, c := f.staff[0], f.staff[1], f.staff[2]
	f.direct(t, a, b)
	f.group(t, c, a)

	contacts, err := f.chats.Contacts(context.Background(), a)
	if err != nil {
		t.Fatalf("contacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Errorf("contacts = %d, want 2", len(contacts))
	}
	if _, ok := contacts[a]; ok {
		t.Error("contacts include the caller")
	}
}

func TestSubscribeMember(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	a, b, c, outsider := f.staff[0], f.staff[1], f.staff[2], f.staff[3]
	g := f.group(t, a, b, c)

	calls := 0
	subscribe := func() { calls++ }

	if err := f.chats.SubscribeMember(ctx, g.ID, b, subscribe); err != nil || calls != 1 {
		t.Fatalf("member subscribe: err %v, calls %d", err, calls)
	}
	if err := f.chats.SubscribeMember(ctx, g.ID, outsider, subscribe); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("outsider subscribe = %v, want authorization", err)
	}

	if _, err := f.chats.RemoveMember(ctx, g.ID, a, b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.chats.SubscribeMember(ctx, g.ID, b, subscribe); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("removed member subscribe = %v, want authorization", err)
	}

	if err := f.chats.Deactivate(ctx, g.ID, a); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.chats.SubscribeMember(ctx, g.ID, a, subscribe); salon_errors.KindOf(err) != salon_errors.KindNotFound {
		t.Errorf("deactivated chat subscribe = %v, want not found", err)
	}
	if calls != 1 {
		t.Errorf("subscribe ran %d times, want 1", calls)
	}
}
