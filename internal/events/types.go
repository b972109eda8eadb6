package events

import (
	"time"

	"github.com/google/uuid"
)

// Outbound event names delivered to live connections.
const (
	MessageReceived   = "message_received"
	MessageSent       = "message_sent"
	MessageEdited     = "message_edited"
	MessageDeleted    = "message_deleted"
	UserTyping        = "user_typing"
	UserStoppedTyping = "user_stopped_typing"
	MessagesRead      = "messages_read"
	UserOnline        = "user_online"
	UserOffline       = "user_offline"
	ChatCreated       = "chat_created"
	ChatUpdated       = "chat_updated"
	RemovedFromChat   = "removed_from_chat"
	Error             = "error"
	Pong              = "pong"
)

// Inbound event names sent by clients.
const (
	JoinChat      = "join_chat"
	LeaveChat     = "leave_chat"
	SendMessage   = "send_message"
	EditMessage   = "edit_message"
	DeleteMessage = "delete_message"
	TypingStart   = "typing_start"
	TypingStop    = "typing_stop"
	MarkRead      = "mark_read"
	CreateGroup   = "create_group"
	AddMembers    = "add_members"
	RemoveMembers = "remove_members"
	UpdateGroup   = "update_group"
	LeaveGroup    = "leave_group"
	Ping          = "ping"
)

// Event is the frame written to a connection.
type Event struct {
	Type      string      `json:"type"`
	Ref       string      `json:"ref,omitempty"`
	ChatID    string      `json:"chat_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func New(eventType string, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
}

// ForChat tags the event with the chat it belongs to.
func ForChat(eventType string, chatID uuid.UUID, payload interface{}) Event {
	evt := New(eventType, payload)
	evt.ChatID = chatID.String()
	return evt
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ChannelForChat is the pub/sub channel chat events are relayed on.
func ChannelForChat(chatID string) string {
	return "channel:chat:" + chatID
}
