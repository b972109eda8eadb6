package events

import (
	"context"

	"salon-chat/internal/metrics"
	"salon-chat/pkg/logger"

	"go.uber.org/zap"
)

// Publisher delivers an envelope to an external sink. Each sink decides its
// own routing and encoding.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// NamedPublisher attaches a sink name used in logs and metrics.
type NamedPublisher struct {
	Name string
	Publisher
}

// Relay forwards chat events to external sinks off the broadcast path.
// Enqueue never blocks; a full queue drops the event.
type Relay struct {
	queue      chan Event
	publishers []NamedPublisher
	log        *logger.Logger
}

func NewRelay(buffer int, log *logger.Logger, publishers ...NamedPublisher) *Relay {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Relay{
		queue:      make(chan Event, buffer),
		publishers: publishers,
		log:        log,
	}
}

// Enabled reports whether any sink is configured.
func (r *Relay) Enabled() bool {
	return r != nil && len(r.publishers) > 0
}

func (r *Relay) Enqueue(evt Event) {
	if !r.Enabled() || evt.ChatID == "" {
		return
	}
	select {
	case r.queue <- evt:
	default:
		metrics.RelayDropped.Inc()
	}
}

// Run drains the queue until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-r.queue:
			r.publish(ctx, evt)
		}
	}
}

func (r *Relay) publish(ctx context.Context, evt Event) {
	env, err := NewEnvelope(evt)
	if err != nil {
		r.log.Logger.Error("relay envelope", zap.String("event", evt.Type), zap.Error(err))
		return
	}
	for _, p := range r.publishers {
		if err := p.Publish(ctx, env); err != nil {
			metrics.RelayFailures.WithLabelValues(p.Name).Inc()
			r.log.Logger.Warn("relay publish failed",
				zap.String("sink", p.Name),
				zap.String("event", evt.Type),
				zap.String("chat_id", env.ChatID),
				zap.Error(err),
			)
		}
	}
}
