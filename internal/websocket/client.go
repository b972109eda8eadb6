package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"salon-chat/internal/events"
	"salon-chat/internal/metrics"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Client is a single websocket connection of one staff member.
type Client struct {
	id      string
	staffID uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}

	state     atomic.Int32
	closeOnce sync.Once
	limiter   *rateLimiter
	log       *Logger

	// rooms is guarded by Hub.mu
	rooms map[string]struct{}
}

func newClient(conn *websocket.Conn, staffID uuid.UUID, sendBuffer int, log *Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		id:      uuid.NewString(),
		staffID: staffID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: newRateLimiter(DefaultRateLimits),
		log:     log,
		rooms:   make(map[string]struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) StaffID() uuid.UUID {
	return c.staffID
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues a frame without blocking. A full buffer drops the frame.
func (c *Client) Send(data []byte, eventType string) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		metrics.FramesBroadcast.WithLabelValues(eventType).Inc()
		return true
	default:
		metrics.FramesDropped.WithLabelValues(eventType).Inc()
		c.log.Warn("send buffer full", c.staffID, c.id, zap.String("type", eventType))
		return false
	}
}

// reply sends an event to this connection only.
func (c *Client) reply(evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Error("marshal reply", c.staffID, c.id, err, zap.String("type", evt.Type))
		return
	}
	c.Send(data, evt.Type)
}

func (c *Client) replyError(ref string, err error) {
	kind := salon_errors.KindOf(err)
	if kind == salon_errors.KindInternal {
		c.log.Error("request failed", c.staffID, c.id, err, zap.String("ref", ref))
	}
	evt := events.New(events.Error, events.ErrorPayload{
		Kind:    string(kind),
		Message: salon_errors.Reason(err),
	})
	evt.Ref = ref
	c.reply(evt)
}

// close is idempotent. The write pump sends the close frame and releases the
// socket, which in turn ends the read pump.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.setState(StateDisconnected)
		close(c.done)
	})
}

func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("unexpected close", c.staffID, c.id, zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(ctx, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
