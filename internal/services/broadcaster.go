package services

import (
	"context"

	"salon-chat/internal/events"

	"github.com/google/uuid"
)

// Broadcaster is the live delivery side of the transport. Every method is
// non-blocking and best-effort.
type Broadcaster interface {
	// ToChat delivers to every connection in the chat's room, skipping
	// connections owned by the excluded staff.
	ToChat(chatID uuid.UUID, evt events.Event, except ...uuid.UUID)
	// ToStaff delivers to every connection of one staff member.
	ToStaff(staffID uuid.UUID, evt events.Event)
	// JoinRoom subscribes the live connections of staffIDs to the chat room.
	JoinRoom(chatID uuid.UUID, staffIDs ...uuid.UUID)
	// EvictFromRoom unsubscribes the live connections of staffID.
	EvictFromRoom(chatID uuid.UUID, staffID uuid.UUID)
}

// NopBroadcaster drops everything.
type NopBroadcaster struct{}

func (NopBroadcaster) ToChat(uuid.UUID, events.Event, ...uuid.UUID) {}
func (NopBroadcaster) ToStaff(uuid.UUID, events.Event)              {}
func (NopBroadcaster) JoinRoom(uuid.UUID, ...uuid.UUID)             {}
func (NopBroadcaster) EvictFromRoom(uuid.UUID, uuid.UUID)           {}

// SendLimiter throttles message sends per staff member.
type SendLimiter interface {
	AllowSend(ctx context.Context, staffID string) (bool, error)
}

// SystemPoster records a system message in a chat.
type SystemPoster interface {
	PostSystem(ctx context.Context, chatID, actorID uuid.UUID, content string) error
}
