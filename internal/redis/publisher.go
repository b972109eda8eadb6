package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"salon-chat/internal/events"

	"github.com/redis/go-redis/v9"
)

// Publisher relays chat envelopes over redis pub/sub, one channel per chat.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, env events.Envelope) error {
	channel, payload, err := pubsubMessage(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, payload).Err()
}

func pubsubMessage(env events.Envelope) (string, []byte, error) {
	if env.ChatID == "" {
		return "", nil, fmt.Errorf("%s envelope has no chat", env.EventType)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s envelope: %w", env.EventType, err)
	}
	return events.ChannelForChat(env.ChatID), payload, nil
}
