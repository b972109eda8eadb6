package websocket

import (
	"context"
	"encoding/json"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/events"
	"salon-chat/internal/services"
	"salon-chat/internal/transport/httpdto"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// inbound is the frame clients send.
type inbound struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type persistFunc func(ctx context.Context, c *Client, in inbound) error

func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		c.replyError("", salon_errors.Validation("malformed frame"))
		return
	}
	if !c.limiter.Allow(in.Type) {
		c.replyError(in.Ref, salon_errors.RateLimited("too many %s events", in.Type))
		return
	}

	switch in.Type {
	case events.Ping:
		evt := events.New(events.Pong, nil)
		evt.Ref = in.Ref
		c.reply(evt)
	case events.JoinChat:
		g.inline(ctx, c, in, g.joinChat)
	case events.LeaveChat:
		g.inline(ctx, c, in, g.leaveChat)
	case events.TypingStart:
		g.inline(ctx, c, in, g.typingStart)
	case events.TypingStop:
		g.inline(ctx, c, in, g.typingStop)
	case events.SendMessage:
		g.submit(ctx, c, in, g.sendMessage)
	case events.EditMessage:
		g.submit(ctx, c, in, g.editMessage)
	case events.DeleteMessage:
		g.submit(ctx, c, in, g.deleteMessage)
	case events.MarkRead:
		g.submit(ctx, c, in, g.markRead)
	case events.CreateGroup:
		g.submit(ctx, c, in, g.createGroup)
	case events.AddMembers:
		g.submit(ctx, c, in, g.addMembers)
	case events.RemoveMembers:
		g.submit(ctx, c, in, g.removeMembers)
	case events.UpdateGroup:
		g.submit(ctx, c, in, g.updateGroup)
	case events.LeaveGroup:
		g.submit(ctx, c, in, g.leaveGroup)
	default:
		c.replyError(in.Ref, salon_errors.Validation("unknown event type %q", in.Type))
	}
}

func (g *Gateway) inline(ctx context.Context, c *Client, in inbound, fn persistFunc) {
	if err := fn(ctx, c, in); err != nil {
		c.replyError(in.Ref, err)
	}
}

// submit hands persistence work to the pool so the read loop keeps reading.
func (g *Gateway) submit(ctx context.Context, c *Client, in inbound, fn persistFunc) {
	err := g.pool.Submit(ctx, func(taskCtx context.Context) {
		if err := fn(taskCtx, c, in); err != nil {
			c.replyError(in.Ref, err)
		}
	})
	if err != nil {
		g.log.Warn("submit rejected", c.staffID, c.id, zap.String("type", in.Type), zap.Error(err))
		c.replyError(in.Ref, err)
	}
}

func decode(in inbound, v interface{}) error {
	if len(in.Payload) == 0 {
		return salon_errors.Validation("%s requires a payload", in.Type)
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		return salon_errors.Validation("invalid %s payload", in.Type)
	}
	return nil
}

func decodeChatID(in inbound) (uuid.UUID, error) {
	var p httpdto.ChatIDPayload
	if err := decode(in, &p); err != nil {
		return uuid.Nil, err
	}
	return httpdto.ParseID(p.ChatID, "chat_id")
}

func (g *Gateway) joinChat(ctx context.Context, c *Client, in inbound) error {
	chatID, err := decodeChatID(in)
	if err != nil {
		return err
	}
	return g.subscribeChat(ctx, c, chatID)
}

func (g *Gateway) leaveChat(ctx context.Context, c *Client, in inbound) error {
	chatID, err := decodeChatID(in)
	if err != nil {
		return err
	}
	g.hub.Unsubscribe(c, chatRoom(chatID))
	return nil
}

func (g *Gateway) typingStart(ctx context.Context, c *Client, in inbound) error {
	chatID, err := decodeChatID(in)
	if err != nil {
		return err
	}
	if err := g.svc.Chats.RequireMember(ctx, chatID, c.staffID); err != nil {
		return err
	}
	if g.presence.StartTyping(chatID, c.staffID) {
		g.hub.ToChat(chatID, events.ForChat(events.UserTyping, chatID, httpdto.TypingPayload{
			ChatID:  chatID.String(),
			StaffID: c.staffID.String(),
		}), c.staffID)
	}
	return nil
}

func (g *Gateway) typingStop(ctx context.Context, c *Client, in inbound) error {
	chatID, err := decodeChatID(in)
	if err != nil {
		return err
	}
	if g.presence.StopTyping(chatID, c.staffID) {
		g.hub.ToChat(chatID, events.ForChat(events.UserStoppedTyping, chatID, httpdto.TypingPayload{
			ChatID:  chatID.String(),
			StaffID: c.staffID.String(),
		}), c.staffID)
	}
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.SendMessageRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	input, err := services.SendInputFromRequest(req, c.staffID)
	if err != nil {
		return err
	}
	m, err := g.svc.Messages.Send(ctx, input)
	if err != nil {
		return err
	}
	if g.presence.StopTyping(m.ChatID, c.staffID) {
		g.hub.ToChat(m.ChatID, events.ForChat(events.UserStoppedTyping, m.ChatID, httpdto.TypingPayload{
			ChatID:  m.ChatID.String(),
			StaffID: c.staffID.String(),
		}), c.staffID)
	}

	ack := events.ForChat(events.MessageSent, m.ChatID, httpdto.FromMessage(m))
	ack.Ref = in.Ref
	c.reply(ack)
	return nil
}

func (g *Gateway) editMessage(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.EditMessageRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	id, err := httpdto.ParseID(req.MessageID, "message_id")
	if err != nil {
		return err
	}
	_, err = g.svc.Messages.Edit(ctx, id, c.staffID, req.Content)
	return err
}

func (g *Gateway) deleteMessage(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.MessageIDPayload
	if err := decode(in, &req); err != nil {
		return err
	}
	id, err := httpdto.ParseID(req.MessageID, "message_id")
	if err != nil {
		return err
	}
	_, err = g.svc.Messages.SoftDelete(ctx, id, c.staffID)
	return err
}

func (g *Gateway) markRead(ctx context.Context, c *Client, in inbound) error {
	chatID, err := decodeChatID(in)
	if err != nil {
		return err
	}
	_, err = g.svc.Reads.MarkAsRead(ctx, chatID, c.staffID)
	return err
}

func (g *Gateway) createGroup(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.CreateChatRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	members, err := httpdto.ParseIDs(req.MemberIDs, "member_ids")
	if err != nil {
		return err
	}
	_, _, err = g.svc.Chats.CreateChat(ctx, services.CreateChatInput{
		Kind:        chat.KindGroup,
		CreatorID:   c.staffID,
		MemberIDs:   members,
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	return err
}

func (g *Gateway) addMembers(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.ChatMembersPayload
	if err := decode(in, &req); err != nil {
		return err
	}
	chatID, err := httpdto.ParseID(req.ChatID, "chat_id")
	if err != nil {
		return err
	}
	members, err := httpdto.ParseIDs(req.MemberIDs, "member_ids")
	if err != nil {
		return err
	}
	_, err = g.svc.Chats.AddMembers(ctx, chatID, c.staffID, members)
	return err
}

func (g *Gateway) removeMembers(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.ChatMembersPayload
	if err := decode(in, &req); err != nil {
		return err
	}
	chatID, err := httpdto.ParseID(req.ChatID, "chat_id")
	if err != nil {
		return err
	}
	members, err := httpdto.ParseIDs(req.MemberIDs, "member_ids")
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return salon_errors.Validation("member_ids is required")
	}
	for _, id := range members {
		if _, err := g.svc.Chats.RemoveMember(ctx, chatID, c.staffID, id); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) updateGroup(ctx context.Context, c *Client, in inbound) error {
	var req httpdto.UpdateGroupPayload
	if err := decode(in, &req); err != nil {
		return err
	}
	chatID, err := httpdto.ParseID(req.ChatID, "chat_id")
	if err != nil {
		return err
	}
	_, err = g.svc.Chats.UpdateChat(ctx, chatID, c.staffID, services.UpdateChatInput{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	return err
}

func (g *Gateway) leaveGroup(ctx context.Context, c *Client, in inbound) error {
	chatID, err := decodeChatID(in)
	if err != nil {
		return err
	}
	return g.svc.Chats.LeaveChat(ctx, chatID, c.staffID)
}
