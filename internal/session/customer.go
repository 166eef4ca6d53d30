package session

import (
	"context"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// CustomerSession serves one customer socket. The customer id is the
// connection identity and overrides anything the client sends.
type CustomerSession struct {
	endpoint
}

// NewCustomerSession creates a session in CONNECTING state.
func (s *Service) NewCustomerSession(conn interfaces.Connection) *CustomerSession {
	return &CustomerSession{endpoint: newEndpoint(s, conn)}
}

// Open registers the socket and announces the customer to admins.
func (c *CustomerSession) Open(ctx context.Context) {
	if !c.open() {
		return
	}
	c.svc.registry.Register(c.conn)
	c.svc.broadcast.ToAdmins(types.NewPresenceEvent(c.conn.Identity(), true), 0)
	c.log.Info("customer connected")
}

// Close unregisters the socket and announces the customer offline. It is
// idempotent.
func (c *CustomerSession) Close() {
	if !c.close() {
		return
	}
	c.svc.registry.Unregister(c.conn)
	c.svc.broadcast.ToAdmins(types.NewPresenceEvent(c.conn.Identity(), false), 0)
	c.log.Info("customer disconnected")
}

// HandleFrame runs one inbound frame to completion.
func (c *CustomerSession) HandleFrame(ctx context.Context, data []byte) {
	ev := c.decode(data)
	if ev == nil {
		return
	}
	customerID := c.conn.Identity()

	switch e := ev.(type) {
	case GetHistory:
		msgs, err := c.svc.CustomerHistory(ctx, customerID)
		if err != nil {
			c.fail(ctx, err, "Failed to load chat history")
			return
		}
		c.reply(types.NewChatHistoryEvent(msgs))

	case ChatMessage:
		if err := c.svc.AdmitCustomer(customerID); err != nil {
			c.log.Warn("rate limit exceeded")
			c.reply(types.NewErrorEvent(RateLimitMessage))
			return
		}
		msg, err := c.svc.SendCustomerMessage(ctx, customerID, e.ConversationID.Int64(), e.Content, e.MediaURL)
		if err != nil {
			c.fail(ctx, err, "Failed to send message")
			return
		}
		c.reply(types.NewChatMessageEvent(*msg))

	case MarkRead:
		if err := c.svc.MarkRead(ctx, e.MessageID.Int64(), 0); err != nil {
			c.fail(ctx, err, "Failed to mark message as read")
		}

	case GetUnreadCount:
		n, err := c.svc.CustomerUnread(ctx, customerID)
		if err != nil {
			c.fail(ctx, err, "Failed to get unread count")
			return
		}
		c.reply(types.NewUnreadCountEvent(n))

	default:
		c.log.WithField("type", ev.EventType()).Debug("event not available to customers")
	}
}
