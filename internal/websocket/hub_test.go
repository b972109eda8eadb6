package websocket

import (
	"encoding/json"
	"testing"

	"salon-chat/internal/events"

	"github.com/google/uuid"
)

func testClient(staffID uuid.UUID, buffer int) *Client {
	return newClient(nil, staffID, buffer, NewLogger(nil))
}

func drain(c *Client) []events.Event {
	var out []events.Event
	for {
		select {
		case data := <-c.send:
			var evt events.Event
			if err := json.Unmarshal(data, &evt); err == nil {
				out = append(out, evt)
			}
		default:
			return out
		}
	}
}

func TestHubRoomsAndBroadcast(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	chatID := uuid.New()
	alice, bob := uuid.New(), uuid.New()
	a1, a2, b1 := testClient(alice, 8), testClient(alice, 8), testClient(bob, 8)

	for _, c := range []*Client{a1, a2, b1} {
		hub.Register(c)
	}
	hub.Subscribe(a1, chatRoom(chatID))
	hub.Subscribe(a2, chatRoom(chatID))
	if hub.ClientCount() != 3 {
		t.Fatalf("ClientCount() = %d", hub.ClientCount())
	}

	hub.JoinRoom(chatID, bob)
	if !hub.InRoom(b1, chatRoom(chatID)) {
		t.Fatal("JoinRoom did not subscribe bob's connection")
	}

	hub.ToChat(chatID, events.ForChat(events.MessageReceived, chatID, nil), alice)
	if n := len(drain(a1)) + len(drain(a2)); n != 0 {
		t.Errorf("excluded staff received %d frames", n)
	}
	if got := drain(b1); len(got) != 1 || got[0].Type != events.MessageReceived {
		t.Errorf("bob received %v", got)
	}

	hub.ToStaff(alice, events.New(events.ChatCreated, nil))
	if len(drain(a1)) != 1 || len(drain(a2)) != 1 || len(drain(b1)) != 0 {
		t.Error("ToStaff did not reach exactly alice's connections")
	}

	hub.EvictFromRoom(chatID, alice)
	if hub.SubscriberCount(chatRoom(chatID)) != 1 {
		t.Errorf("subscribers after evict = %d, want 1", hub.SubscriberCount(chatRoom(chatID)))
	}
}

func TestHubUnregisterReturnsChats(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	chatA, chatB := uuid.New(), uuid.New()
	c := testClient(uuid.New(), 8)
	hub.Register(c)
	hub.Subscribe(c, chatRoom(chatA))
	hub.Subscribe(c, chatRoom(chatB))

	chats, ok := hub.Unregister(c)
	if !ok || len(chats) != 2 {
		t.Fatalf("Unregister() = %v, %v", chats, ok)
	}
	if _, ok := hub.Unregister(c); ok {
		t.Error("second Unregister reported ok")
	}
	if hub.SubscriberCount(chatRoom(chatA)) != 0 || hub.SubscriberCount(staffRoom(c.staffID)) != 0 {
		t.Error("rooms still reference the client")
	}

	// A client that is gone cannot be resubscribed.
	if hub.Subscribe(c, chatRoom(chatA)) {
		t.Error("Subscribe reported success for an unregistered client")
	}
	if hub.SubscriberCount(chatRoom(chatA)) != 0 {
		t.Error("Subscribe accepted an unregistered client")
	}
}

func TestClientSendBackpressure(t *testing.T) {
	t.Parallel()

	c := testClient(uuid.New(), 1)
	if !c.Send([]byte("{}"), "test") {
		t.Fatal("first send rejected")
	}
	if c.Send([]byte("{}"), "test") {
		t.Error("send into full buffer accepted")
	}

	c.close()
	c.close()
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}
	drain(c)
	if c.Send([]byte("{}"), "test") {
		t.Error("send after close accepted")
	}
}

func TestHubCloseAll(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	clients := []*Client{testClient(uuid.New(), 1), testClient(uuid.New(), 1)}
	for _, c := range clients {
		hub.Register(c)
	}
	hub.CloseAll()
	for _, c := range clients {
		if c.State() != StateDisconnected {
			t.Errorf("client %s state = %s", c.ID(), c.State())
		}
	}
}
