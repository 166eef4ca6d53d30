package types

import (
	"time"
)

// SenderType identifies which side of a conversation authored a message.
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderAdmin SenderType = "admin"
)

// Role tags a live connection with the side of the chat it serves.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Priority is the triage level an admin assigns to a conversation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DefaultPriority is applied to conversations created on first message.
const DefaultPriority = PriorityMedium

// Valid reports whether p is one of the three supported levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Message is the canonical shape of a chat message on every read path.
// MediaURL and MediaType encode as null when absent; IsRead is 0 or 1.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	SenderType     SenderType `json:"sender_type"`
	SenderName     string     `json:"sender_name"`
	Content        string     `json:"content"`
	MediaURL       *string    `json:"media_url"`
	MediaType      *string    `json:"media_type"`
	Timestamp      time.Time  `json:"timestamp"`
	IsRead         int        `json:"is_read"`
}

// Conversation is one customer's support thread. The listing fields
// (CustomerName through IsOnline) are derived at read time.
type Conversation struct {
	ID              int64      `json:"id"`
	CustomerID      int64      `json:"customer_id"`
	CustomerName    string     `json:"customer_name"`
	Priority        Priority   `json:"priority"`
	CreatedAt       time.Time  `json:"created_at"`
	LastMessage     *string    `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	UnreadCount     int        `json:"unread_count"`
	IsOnline        bool       `json:"is_online"`
}

// ConversationFilter narrows the admin conversation listing.
type ConversationFilter string

const (
	FilterAll       ConversationFilter = ""
	FilterUnread    ConversationFilter = "unread"
	FilterToday     ConversationFilter = "today"
	FilterYesterday ConversationFilter = "yesterday"
	FilterHigh      ConversationFilter = "high"
	FilterMedium    ConversationFilter = "medium"
	FilterLow       ConversationFilter = "low"
)

// NewMessage carries the caller-supplied fields of a message insert.
// Everything else (id, timestamp, read flag, sender name) is assigned by the store.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	SenderType     SenderType
	Content        string
	MediaURL       string
}
