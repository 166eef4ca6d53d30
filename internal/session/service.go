package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"chatdesk/internal/router"
	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// DefaultHistoryLimit caps every history read.
const DefaultHistoryLimit = 500

// Limiter gates customer sends. *router.RateLimiter satisfies it.
type Limiter interface {
	Admit(key string) bool
}

// Options configures a Service.
type Options struct {
	HistoryLimit int
}

// Service holds the chat operations shared by the socket sessions and the
// HTTP API: every mutation goes to the store first, then fans out.
type Service struct {
	store        interfaces.ChatStore
	registry     interfaces.Registry
	broadcast    interfaces.Broadcaster
	limiter      Limiter
	historyLimit int
	log          *logrus.Entry
}

// NewService wires the chat core together. log may be nil.
func NewService(store interfaces.ChatStore, registry interfaces.Registry, broadcast interfaces.Broadcaster, limiter Limiter, opts Options, log *logrus.Entry) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:        store,
		registry:     registry,
		broadcast:    broadcast,
		limiter:      limiter,
		historyLimit: opts.HistoryLimit,
		log:          log,
	}
}

// CustomerHistory returns the customer's recent messages across every
// conversation they own or wrote into.
func (s *Service) CustomerHistory(ctx context.Context, customerID int64) ([]types.Message, error) {
	msgs, err := s.store.ListCustomerMessages(ctx, customerID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	return nonNilMessages(msgs), nil
}

// ConversationHistory returns the recent messages of one conversation.
func (s *Service) ConversationHistory(ctx context.Context, conversationID int64) ([]types.Message, error) {
	if conversationID <= 0 {
		return nil, ErrConversationIDRequired
	}
	msgs, err := s.store.ListMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	return nonNilMessages(msgs), nil
}

// AdmitCustomer applies the per-customer send limit.
func (s *Service) AdmitCustomer(customerID int64) error {
	if s.limiter != nil && !s.limiter.Admit(strconv.FormatInt(customerID, 10)) {
		return router.ErrRateLimited
	}
	return nil
}

// SendCustomerMessage stores a message from customerID and pushes it to
// every admin. Rate limiting is the caller's concern.
func (s *Service) SendCustomerMessage(ctx context.Context, customerID, conversationID int64, content, mediaURL string) (*types.Message, error) {
	if err := checkBody(content, mediaURL); err != nil {
		return nil, err
	}
	convID, err := s.store.FindOrCreateConversation(ctx, customerID, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.InsertMessage(ctx, types.NewMessage{
		ConversationID: convID,
		SenderID:       customerID,
		SenderType:     types.SenderUser,
		Content:        content,
		MediaURL:       strings.TrimSpace(mediaURL),
	})
	if err != nil {
		return nil, err
	}

	s.broadcast.ToAdmins(types.NewChatMessageEvent(*msg), 0)
	return msg, nil
}

// SendAdminMessage stores a reply from adminID, pushes it to the owning
// customer and refreshes the listing of every other admin.
func (s *Service) SendAdminMessage(ctx context.Context, adminID, conversationID int64, content, mediaURL string) (*types.Message, error) {
	if conversationID <= 0 {
		return nil, ErrConversationIDRequired
	}
	if err := checkBody(content, mediaURL); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.InsertMessage(ctx, types.NewMessage{
		ConversationID: conversationID,
		SenderID:       adminID,
		SenderType:     types.SenderAdmin,
		Content:        content,
		MediaURL:       strings.TrimSpace(mediaURL),
	})
	if err != nil {
		return nil, err
	}

	s.broadcast.ToCustomer(conv.CustomerID, types.NewChatMessageEvent(*msg))
	s.refreshAdmins(ctx, adminID)
	return msg, nil
}

// refreshAdmins pushes the full listing to all admins but excludeAdminID.
// A failed listing only costs the refresh.
func (s *Service) refreshAdmins(ctx context.Context, excludeAdminID int64) {
	list, err := s.Conversations(ctx, types.FilterAll)
	if err != nil {
		s.log.WithError(err).WithField("admin_id", excludeAdminID).Error("failed to refresh admin conversations")
		return
	}
	s.broadcast.ToAdmins(types.NewConversationsEvent(list), excludeAdminID)
}

// MarkRead flips a message to read and tells the admins. byAdminID is the
// acting admin, excluded from the notification; zero when a customer reads.
func (s *Service) MarkRead(ctx context.Context, messageID, byAdminID int64) error {
	if messageID <= 0 {
		return ErrMessageIDRequired
	}
	found, err := s.store.MarkRead(ctx, messageID)
	if err != nil {
		return err
	}
	if !found {
		return interfaces.ErrMessageNotFound
	}
	s.broadcast.ToAdmins(types.NewMessageReadEvent(messageID), byAdminID)
	return nil
}

func (s *Service) CustomerUnread(ctx context.Context, customerID int64) (int, error) {
	return s.store.CountUnreadForCustomer(ctx, customerID)
}

func (s *Service) AdminUnread(ctx context.Context) (int, error) {
	return s.store.CountUnreadForAdmins(ctx)
}

// SetPriority validates raw before touching the store and announces the
// change to every admin, the requester included.
func (s *Service) SetPriority(ctx context.Context, conversationID int64, raw string) (types.Priority, error) {
	if conversationID <= 0 {
		return "", ErrConversationIDRequired
	}
	p, err := types.ParsePriority(raw)
	if err != nil {
		return "", err
	}
	found, err := s.store.SetPriority(ctx, conversationID, p)
	if err != nil {
		return "", err
	}
	if !found {
		return "", interfaces.ErrConversationNotFound
	}
	s.broadcast.ToAdmins(types.NewPriorityUpdatedEvent(conversationID, p), 0)
	return p, nil
}

// Conversations returns the admin listing with presence filled in.
func (s *Service) Conversations(ctx context.Context, filter types.ConversationFilter) ([]types.Conversation, error) {
	list, err := s.store.ListConversations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.withPresence(list), nil
}

// Search matches customer names and message content.
func (s *Service) Search(ctx context.Context, term string) ([]types.Conversation, error) {
	list, err := s.store.SearchConversations(ctx, term)
	if err != nil {
		return nil, err
	}
	return s.withPresence(list), nil
}

func (s *Service) withPresence(list []types.Conversation) []types.Conversation {
	if list == nil {
		return []types.Conversation{}
	}
	for i := range list {
		list[i].IsOnline = s.registry.IsCustomerOnline(list[i].CustomerID)
	}
	return list
}

// HealthCheck reports store connectivity.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store unhealthy: %w", err)
	}
	return nil
}

func checkBody(content, mediaURL string) error {
	if strings.TrimSpace(content) == "" && strings.TrimSpace(mediaURL) == "" {
		return ErrEmptyMessage
	}
	return nil
}

func nonNilMessages(msgs []types.Message) []types.Message {
	if msgs == nil {
		return []types.Message{}
	}
	return msgs
}
