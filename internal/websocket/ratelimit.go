package websocket

import (
	"time"

	"salon-chat/internal/events"

	"golang.org/x/time/rate"
)

// RateLimits are per-connection inbound budgets per minute.
type RateLimits struct {
	MaxTypingEvents int
	MaxReadReceipts int
	MaxMessages     int
	MaxGroupChanges int
	MaxRoomChanges  int
	MaxPingMessages int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents: 60,
	MaxReadReceipts: 120,
	MaxMessages:     120,
	MaxGroupChanges: 30,
	MaxRoomChanges:  120,
	MaxPingMessages: 60,
}

type bucket int

const (
	bucketTyping bucket = iota
	bucketRead
	bucketMessages
	bucketGroup
	bucketRooms
	bucketPing
	bucketCount
)

func bucketFor(eventType string) (bucket, bool) {
	switch eventType {
	case events.TypingStart, events.TypingStop:
		return bucketTyping, true
	case events.MarkRead:
		return bucketRead, true
	case events.SendMessage, events.EditMessage, events.DeleteMessage:
		return bucketMessages, true
	case events.CreateGroup, events.AddMembers, events.RemoveMembers, events.UpdateGroup, events.LeaveGroup:
		return bucketGroup, true
	case events.JoinChat, events.LeaveChat:
		return bucketRooms, true
	case events.Ping:
		return bucketPing, true
	}
	return 0, false
}

// rateLimiter holds one token bucket per event class. Each bucket allows
// its per-minute budget as a burst and refills evenly across the minute.
type rateLimiter struct {
	limiters [bucketCount]*rate.Limiter
	clock    func() time.Time
}

func newRateLimiter(l RateLimits) *rateLimiter {
	budgets := [bucketCount]int{
		bucketTyping:   l.MaxTypingEvents,
		bucketRead:     l.MaxReadReceipts,
		bucketMessages: l.MaxMessages,
		bucketGroup:    l.MaxGroupChanges,
		bucketRooms:    l.MaxRoomChanges,
		bucketPing:     l.MaxPingMessages,
	}
	rl := &rateLimiter{clock: time.Now}
	for b, n := range budgets {
		rl.limiters[b] = perMinute(n)
	}
	return rl
}

func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(0, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// Allow consumes a token for eventType. Unknown types are not limited here;
// the dispatcher rejects them.
func (rl *rateLimiter) Allow(eventType string) bool {
	b, ok := bucketFor(eventType)
	if !ok {
		return true
	}
	return rl.limiters[b].AllowN(rl.clock(), 1)
}
