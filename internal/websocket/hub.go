package websocket

import (
	"encoding/json"
	"strings"
	"sync"

	"salon-chat/internal/events"
	"salon-chat/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	chatRoomPrefix  = "chat:"
	staffRoomPrefix = "staff:"
)

func chatRoom(chatID uuid.UUID) string {
	return chatRoomPrefix + chatID.String()
}

func staffRoom(staffID uuid.UUID) string {
	return staffRoomPrefix + staffID.String()
}

// Hub tracks live connections and the rooms they are subscribed to. It is
// the process-local fan-out for chat and staff events.
type Hub struct {
	mu sync.RWMutex

	// clients maps connection id to client
	clients map[string]*Client

	// rooms maps room name to the set of subscribed clients
	rooms map[string]map[*Client]struct{}

	relay *events.Relay
	log   *Logger
}

func NewHub(relay *events.Relay, log *Logger) *Hub {
	if log == nil {
		log = NewLogger(nil)
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
		relay:   relay,
		log:     log,
	}
}

// Register adds a client and subscribes it to its staff room. Chat rooms
// are joined afterwards through Subscribe.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; ok {
		return
	}
	h.clients[c.id] = c
	metrics.ActiveConnections.Inc()

	h.subscribeLocked(c, staffRoom(c.staffID))
}

// Unregister removes a client from every room and returns the chats it was
// subscribed to. ok is false when the client was not registered.
func (h *Hub) Unregister(c *Client) (chats []uuid.UUID, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return nil, false
	}
	delete(h.clients, c.id)
	metrics.ActiveConnections.Dec()

	for room := range c.rooms {
		if raw, ok := strings.CutPrefix(room, chatRoomPrefix); ok {
			if id, err := uuid.Parse(raw); err == nil {
				chats = append(chats, id)
			}
		}
		h.dropLocked(c, room)
	}
	return chats, true
}

// Subscribe reports false when the client is no longer registered.
func (h *Hub) Subscribe(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return false
	}
	h.subscribeLocked(c, room)
	return true
}

func (h *Hub) Unsubscribe(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c, room)
}

func (h *Hub) subscribeLocked(c *Client, room string) {
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) dropLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Broadcast queues evt to every client in room whose staff id is not in
// except, and returns how many clients accepted the frame.
func (h *Hub) Broadcast(room string, evt events.Event, except ...uuid.UUID) int {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.logger.Error("marshal event", zap.String("type", evt.Type), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if excluded(c.staffID, except) {
			continue
		}
		if c.Send(data, evt.Type) {
			delivered++
		}
	}
	return delivered
}

func excluded(id uuid.UUID, except []uuid.UUID) bool {
	for _, e := range except {
		if e == id {
			return true
		}
	}
	return false
}

// ToChat delivers evt to the chat room and hands it to the relay.
func (h *Hub) ToChat(chatID uuid.UUID, evt events.Event, except ...uuid.UUID) {
	h.Broadcast(chatRoom(chatID), evt, except...)
	h.relay.Enqueue(evt)
}

func (h *Hub) ToStaff(staffID uuid.UUID, evt events.Event) {
	h.Broadcast(staffRoom(staffID), evt)
}

// JoinRoom subscribes every live connection of staffIDs to the chat room.
func (h *Hub) JoinRoom(chatID uuid.UUID, staffIDs ...uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := chatRoom(chatID)
	for _, id := range staffIDs {
		for c := range h.rooms[staffRoom(id)] {
			h.subscribeLocked(c, room)
		}
	}
}

// EvictFromRoom unsubscribes every live connection of staffID.
func (h *Hub) EvictFromRoom(chatID uuid.UUID, staffID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := chatRoom(chatID)
	for c := range h.rooms[staffRoom(staffID)] {
		h.dropLocked(c, room)
	}
}

// CloseAll asks every live connection to close. Used on shutdown since
// hijacked connections outlive http.Server.Shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// InRoom reports whether the client is subscribed to room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}
