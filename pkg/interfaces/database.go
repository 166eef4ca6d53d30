package interfaces

import (
	"context"

	"chatdesk/pkg/types"
)

// ChatStore is the persistence contract of the chat core. Each operation is
// independently atomic. Message-returning reads always yield normalized
// messages in ascending (timestamp, id) order.
type ChatStore interface {
	// FindOrCreateConversation returns explicitID unchanged when non-zero.
	// Otherwise it resolves the customer's conversation, creating one if none
	// exists.
	FindOrCreateConversation(ctx context.Context, customerID, explicitID int64) (int64, error)

	// GetConversation returns ErrConversationNotFound for unknown ids.
	GetConversation(ctx context.Context, conversationID int64) (*types.Conversation, error)

	InsertMessage(ctx context.Context, msg types.NewMessage) (*types.Message, error)

	// ListMessages returns the most recent limit messages of a conversation.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]types.Message, error)

	// ListCustomerMessages returns the most recent limit messages either in
	// the customer's conversations or authored by the customer.
	ListCustomerMessages(ctx context.Context, customerID int64, limit int) ([]types.Message, error)

	// MarkRead flips unread to read. found is false when the id is unknown.
	MarkRead(ctx context.Context, messageID int64) (found bool, err error)

	CountUnreadForAdmins(ctx context.Context) (int, error)
	CountUnreadForCustomer(ctx context.Context, customerID int64) (int, error)

	// SetPriority expects an already validated priority.
	SetPriority(ctx context.Context, conversationID int64, priority types.Priority) (found bool, err error)

	ListConversations(ctx context.Context, filter types.ConversationFilter) ([]types.Conversation, error)
	SearchConversations(ctx context.Context, term string) ([]types.Conversation, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
