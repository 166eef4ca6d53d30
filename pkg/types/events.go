package types

// Event type tags shared by inbound and outbound frames.
const (
	EventGetConversations    = "get_conversations"
	EventGetHistory          = "get_history"
	EventChatMessage         = "chat_message"
	EventMarkRead            = "mark_read"
	EventGetUnreadCount      = "get_unread_count"
	EventSetPriority         = "set_priority"
	EventFilterConversations = "filter_conversations"
	EventSearchConversations = "search_conversations"

	EventConversations   = "conversations"
	EventChatHistory     = "chat_history"
	EventMessageRead     = "message_read"
	EventUnreadCount     = "unread_count"
	EventPriorityUpdated = "priority_updated"
	EventCustomerOnline  = "customer_online"
	EventCustomerOffline = "customer_offline"
	EventError           = "error"
)

// ConversationsEvent carries an admin listing. Conversations is never nil.
type ConversationsEvent struct {
	Type          string         `json:"type"`
	Conversations []Conversation `json:"conversations"`
}

type ChatHistoryEvent struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
}

type ChatMessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

type MessageReadEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

type UnreadCountEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type PriorityUpdatedEvent struct {
	Type           string   `json:"type"`
	ConversationID int64    `json:"conversation_id"`
	Priority       Priority `json:"priority"`
}

// PresenceEvent is either customer_online or customer_offline.
type PresenceEvent struct {
	Type       string `json:"type"`
	CustomerID int64  `json:"customer_id"`
}

// ErrorEvent is the only failure shape a client ever sees on a socket.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewConversationsEvent(cs []Conversation) ConversationsEvent {
	if cs == nil {
		cs = []Conversation{}
	}
	return ConversationsEvent{Type: EventConversations, Conversations: cs}
}

func NewChatHistoryEvent(msgs []Message) ChatHistoryEvent {
	if msgs == nil {
		msgs = []Message{}
	}
	return ChatHistoryEvent{Type: EventChatHistory, Messages: msgs}
}

func NewChatMessageEvent(m Message) ChatMessageEvent {
	return ChatMessageEvent{Type: EventChatMessage, Message: m}
}

func NewMessageReadEvent(messageID int64) MessageReadEvent {
	return MessageReadEvent{Type: EventMessageRead, MessageID: messageID}
}

func NewUnreadCountEvent(n int) UnreadCountEvent {
	return UnreadCountEvent{Type: EventUnreadCount, Count: n}
}

func NewPriorityUpdatedEvent(conversationID int64, p Priority) PriorityUpdatedEvent {
	return PriorityUpdatedEvent{Type: EventPriorityUpdated, ConversationID: conversationID, Priority: p}
}

func NewPresenceEvent(customerID int64, online bool) PresenceEvent {
	t := EventCustomerOffline
	if online {
		t = EventCustomerOnline
	}
	return PresenceEvent{Type: t, CustomerID: customerID}
}

func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: msg}
}
