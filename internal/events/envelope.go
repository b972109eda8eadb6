package events

import (
	"encoding/json"
	"time"
)

// Envelope is the relayed form of a chat event.
type Envelope struct {
	EventType  string          `json:"event_type"`
	ChatID     string          `json:"chat_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(evt Event) (Envelope, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:  evt.Type,
		ChatID:     evt.ChatID,
		OccurredAt: evt.Timestamp,
		Payload:    payload,
	}, nil
}
