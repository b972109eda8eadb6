package services

import (
	"context"
	"fmt"
	"testing"

	"salon-chat/internal/events"
	salon_errors "salon-chat/pkg/errors"
)

func TestMarkAsReadIsMonotonic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	a, b := f.staff[0], f.staff[1]
	d := f.direct(t, a, b)

	var ids []string
	for i := 0; i < 3; i++ {
		m, err := f.messages.Send(ctx, SendInput{ChatID: d.ID, SenderID: a, Content: fmt.Sprintf("m%d", i)})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		ids = append(ids, m.ID.String())
	}

	member, err := f.reads.MarkAsRead(ctx, d.ID, b)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if member.LastReadSeq != 3 || member.LastReadMessageID.UUID.String() != ids[2] {
		t.Fatalf("pointer = seq %d id %s, want seq 3 id %s", member.LastReadSeq, member.LastReadMessageID.UUID, ids[2])
	}

	// Marking an older message never moves the pointer back.
	newest, err := f.store.Messages().GetByID(ctx, member.LastReadMessageID.UUID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	page, err := f.messages.List(ctx, d.ID, b, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	member, err = f.reads.MarkMessageRead(ctx, page.Messages[0].ID, b)
	if err != nil {
		t.Fatalf("mark message read: %v", err)
	}
	if member.LastReadSeq != newest.Seq {
		t.Errorf("pointer moved back to seq %d", member.LastReadSeq)
	}

	// Deleting the newest message leaves the pointer where it was.
	if _, err := f.messages.SoftDelete(ctx, newest.ID, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	member, err = f.reads.MarkAsRead(ctx, d.ID, b)
	if err != nil {
		t.Fatalf("mark read after delete: %v", err)
	}
	if member.LastReadSeq != 3 {
		t.Errorf("pointer = seq %d after delete, want 3", member.LastReadSeq)
	}

	if got := f.bus.chatEvents(d.ID, events.MessagesRead); len(got) != 1 {
		t.Errorf("messages_read events = %d, want 1", len(got))
	}
}

func TestUnreadCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	a, b := f.staff[0], f.staff[1]
	d := f.direct(t, a, b)

	f.send(t, d.ID, a, "one")
	f.send(t, d.ID, a, "two")
	f.send(t, d.ID, b, "mine")

	count := func(staff string) int64 {
		t.Helper()
		id := a
		if staff == "b" {
			id = b
		}
		n, err := f.reads.UnreadCount(ctx, d.ID, id)
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		return n
	}

	if got := count("b"); got != 2 {
		t.Errorf("b unread = %d, want 2 (own messages excluded)", got)
	}
	if got := count("a"); got != 1 {
		t.Errorf("a unread = %d, want 1", got)
	}

	if _, err := f.reads.MarkAsRead(ctx, d.ID, b); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := count("b"); got != 0 {
		t.Errorf("b unread after mark = %d, want 0", got)
	}

	m, err := f.messages.Send(ctx, SendInput{ChatID: d.ID, SenderID: a, Content: "three"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := count("b"); got != 1 {
		t.Errorf("b unread = %d, want 1", got)
	}
	if _, err := f.messages.SoftDelete(ctx, m.ID, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := count("b"); got != 0 {
		t.Errorf("b unread after delete = %d, want 0", got)
	}

	if _, err := f.reads.UnreadCount(ctx, d.ID, f.staff[3]); salon_errors.KindOf(err) != salon_errors.KindAuthorization {
		t.Errorf("outsider unread = %v, want authorization", err)
	}
}

func TestUnreadSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	a, b, c := f.staff[0], f.staff[1], f.staff[2]
	ab := f.direct(t, a, b)
	ac := f.direct(t, a, c)
	f.send(t, ab.ID, b, "x")
	f.send(t, ab.ID, b, "y")
	f.send(t, ac.ID, c, "z")

	summary, err := f.reads.UnreadSummary(ctx, a)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	got := make(map[string]int64)
	for _, s := range summary {
		got[s.ChatID.String()] = s.Count
	}
	if got[ab.ID.String()] != 2 || got[ac.ID.String()] != 1 || len(got) != 2 {
		t.Errorf("summary = %v", got)
	}
}

func TestReadByIsDerivedFromPointers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	a, b, c := f.staff[0], f.staff[1], f.staff[2]
	g := f.group(t, a, b, c)

	first, err := f.messages.Send(ctx, SendInput{ChatID: g.ID, SenderID: a, Content: "first"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.reads.MarkAsRead(ctx, g.ID, b); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	second, err := f.messages.Send(ctx, SendInput{ChatID: g.ID, SenderID: a, Content: "second"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := f.messages.GetMessage(ctx, first.ID, c)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ReadBy) != 1 || got.ReadBy[0].StaffID != b {
		t.Errorf("first read by %+v, want only %s", got.ReadBy, b)
	}
	got, err = f.messages.GetMessage(ctx, second.ID, c)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ReadBy) != 0 {
		t.Errorf("second read by %+v, want nobody", got.ReadBy)
	}
}

func TestFirstPageMarksRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		enabled bool
		page    int
		wantSeq int64
	}{
		{"enabled page 1", true, 1, 5},
		{"enabled page 2", true, 2, 0},
		{"disabled", false, 1, 0},
	}
	for _, tt := range tests {
		f := newFixture(t, fixtureOptions{markReadOnFirstPage: tt.enabled})
		ctx := context.Background()
		a, b := f.staff[0], f.staff[1]
		d := f.direct(t, a, b)
		for i := 0; i < 5; i++ {
			f.send(t, d.ID, a, fmt.Sprintf("m%d", i))
		}

		if _, err := f.messages.List(ctx, d.ID, b, tt.page, 3); err != nil {
			t.Fatalf("%s: list: %v", tt.name, err)
		}
		member, err := f.store.Chats().GetMember(ctx, d.ID, b)
		if err != nil {
			t.Fatalf("%s: member: %v", tt.name, err)
		}
		if member.LastReadSeq != tt.wantSeq {
			t.Errorf("%s: pointer = %d, want %d", tt.name, member.LastReadSeq, tt.wantSeq)
		}
	}
}
