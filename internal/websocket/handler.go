package websocket

import (
	"context"
	"net/http"
	"strings"

	"salon-chat/internal/events"
	"salon-chat/internal/presence"
	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"
	"salon-chat/internal/workerpool"
	salon_errors "salon-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Services are the operations the gateway dispatches inbound events to.
type Services struct {
	Chats    *services.ChatService
	Messages *services.MessageService
	Reads    *services.ReadService
}

type Options struct {
	SendBuffer int
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

// Gateway upgrades authenticated requests to websocket connections and
// routes their inbound events.
type Gateway struct {
	verifier   services.IdentityVerifier
	hub        *Hub
	presence   *presence.Registry
	svc        Services
	pool       *workerpool.Pool
	log        *Logger
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewGateway(verifier services.IdentityVerifier, hub *Hub, reg *presence.Registry, svc Services, pool *workerpool.Pool, log *Logger, opts Options) *Gateway {
	if log == nil {
		log = NewLogger(nil)
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Gateway{
		verifier: verifier,
		hub:      hub,
		presence: reg,
		svc:      svc,
		pool:     pool,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sendBuffer: opts.SendBuffer,
	}
}

// Handle serves GET /ws. The connection lives until the client goes away or
// the read deadline lapses.
func (g *Gateway) Handle(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		err := salon_errors.Authentication("missing token")
		c.JSON(http.StatusUnauthorized, httpdto.FromError(err))
		return
	}

	identity, err := g.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.JSON(services.HTTPStatus(err), httpdto.FromError(err))
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Error("upgrade failed", identity.StaffID, "", err)
		return
	}

	client := newClient(conn, identity.StaffID, g.sendBuffer, g.log)
	client.setState(StateAuthenticated)
	go client.writePump()

	ctx := services.WithIdentity(context.Background(), identity)
	if err := g.connect(ctx, client); err != nil {
		client.replyError("", err)
		g.disconnect(client)
		return
	}
	client.readPump(ctx, g.dispatch)
	g.disconnect(client)
}

// connect registers the client in its staff room before memberships are
// read, so chats created or joined from then on reach it through the room.
// Each chat room is then joined under that chat's lock.
func (g *Gateway) connect(ctx context.Context, c *Client) error {
	g.hub.Register(c)

	chatIDs, err := g.svc.Chats.MemberChatIDs(ctx, c.staffID)
	if err != nil {
		g.log.Error("load memberships", c.staffID, c.id, err)
		return err
	}
	joined := make([]uuid.UUID, 0, len(chatIDs))
	for _, id := range chatIDs {
		err := g.subscribeChat(ctx, c, id)
		switch salon_errors.KindOf(err) {
		case "":
			joined = append(joined, id)
		case salon_errors.KindAuthorization, salon_errors.KindNotFound:
			// Removed or deactivated since the memberships were read.
		default:
			g.log.Error("subscribe chat", c.staffID, c.id, err, zap.String("chat_id", id.String()))
			return err
		}
	}
	c.setState(StateSubscribed)

	if g.presence.Register(c.staffID, c.id) {
		payload := httpdto.PresencePayload{StaffID: c.staffID.String()}
		for _, id := range joined {
			g.hub.ToChat(id, events.ForChat(events.UserOnline, id, payload), c.staffID)
		}
	}
	g.log.Info("connected", c.staffID, c.id, zap.Int("chats", len(joined)))
	return nil
}

func (g *Gateway) subscribeChat(ctx context.Context, c *Client, chatID uuid.UUID) error {
	return g.svc.Chats.SubscribeMember(ctx, chatID, c.staffID, func() {
		g.hub.Subscribe(c, chatRoom(chatID))
	})
}

// disconnect tears down a connection once. Room subscriptions and presence
// are gone when it returns, and typing state too when it was the staff
// member's last connection.
func (g *Gateway) disconnect(c *Client) {
	c.close()
	chatIDs, ok := g.hub.Unregister(c)
	if !ok {
		return
	}
	if !g.presence.Unregister(c.staffID, c.id) {
		g.log.Info("disconnected", c.staffID, c.id)
		return
	}

	for _, t := range g.presence.ClearStaff(c.staffID) {
		g.hub.ToChat(t.ChatID, events.ForChat(events.UserStoppedTyping, t.ChatID, httpdto.TypingPayload{
			ChatID:  t.ChatID.String(),
			StaffID: t.StaffID.String(),
		}), c.staffID)
	}
	payload := httpdto.PresencePayload{StaffID: c.staffID.String()}
	for _, id := range chatIDs {
		g.hub.ToChat(id, events.ForChat(events.UserOffline, id, payload), c.staffID)
	}
	g.log.Info("disconnected", c.staffID, c.id)
}

// TypingExpired announces typing entries the janitor cleared.
func (g *Gateway) TypingExpired(entries []presence.TypingEntry) {
	for _, t := range entries {
		g.hub.ToChat(t.ChatID, events.ForChat(events.UserStoppedTyping, t.ChatID, httpdto.TypingPayload{
			ChatID:  t.ChatID.String(),
			StaffID: t.StaffID.String(),
		}), t.StaffID)
	}
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
