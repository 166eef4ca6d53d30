package session

import (
	"context"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// AdminSession serves one admin socket. Several sockets may share an admin
// identity; broadcasts that exclude the sender exclude all of them.
type AdminSession struct {
	endpoint
}

// NewAdminSession creates a session in CONNECTING state.
func (s *Service) NewAdminSession(conn interfaces.Connection) *AdminSession {
	return &AdminSession{endpoint: newEndpoint(s, conn)}
}

func (a *AdminSession) Open(context.Context) {
	if !a.open() {
		return
	}
	a.svc.registry.Register(a.conn)
	a.log.Info("admin connected")
}

func (a *AdminSession) Close() {
	if !a.close() {
		return
	}
	a.svc.registry.Unregister(a.conn)
	a.log.Info("admin disconnected")
}

// HandleFrame runs one inbound frame to completion.
func (a *AdminSession) HandleFrame(ctx context.Context, data []byte) {
	ev := a.decode(data)
	if ev == nil {
		return
	}
	adminID := a.conn.Identity()

	switch e := ev.(type) {
	case GetConversations:
		a.listing(ctx, func() ([]types.Conversation, error) {
			return a.svc.Conversations(ctx, types.FilterAll)
		}, "Failed to get conversations")

	case FilterConversations:
		a.listing(ctx, func() ([]types.Conversation, error) {
			return a.svc.Conversations(ctx, types.ParseFilter(e.Filter))
		}, "Failed to filter conversations")

	case SearchConversations:
		a.listing(ctx, func() ([]types.Conversation, error) {
			return a.svc.Search(ctx, e.Query)
		}, "Failed to search conversations")

	case GetHistory:
		msgs, err := a.svc.ConversationHistory(ctx, e.ConversationID.Int64())
		if err != nil {
			a.fail(ctx, err, "Failed to load chat history")
			return
		}
		a.reply(types.NewChatHistoryEvent(msgs))

	case ChatMessage:
		msg, err := a.svc.SendAdminMessage(ctx, adminID, e.ConversationID.Int64(), e.Content, e.MediaURL)
		if err != nil {
			a.fail(ctx, err, "Failed to send message")
			return
		}
		a.reply(types.NewChatMessageEvent(*msg))

	case MarkRead:
		if err := a.svc.MarkRead(ctx, e.MessageID.Int64(), adminID); err != nil {
			a.fail(ctx, err, "Failed to mark message as read")
		}

	case GetUnreadCount:
		n, err := a.svc.AdminUnread(ctx)
		if err != nil {
			a.fail(ctx, err, "Failed to get unread count")
			return
		}
		a.reply(types.NewUnreadCountEvent(n))

	case SetPriority:
		if _, err := a.svc.SetPriority(ctx, e.ConversationID.Int64(), e.Priority); err != nil {
			a.fail(ctx, err, "Failed to update priority")
		}

	default:
		a.log.WithField("type", ev.EventType()).Debug("event not available to admins")
	}
}

func (a *AdminSession) listing(ctx context.Context, load func() ([]types.Conversation, error), fallback string) {
	list, err := load()
	if err != nil {
		a.fail(ctx, err, fallback)
		return
	}
	a.reply(types.NewConversationsEvent(list))
}
