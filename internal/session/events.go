package session

import (
	"encoding/json"
	"fmt"

	"chatdesk/pkg/types"
)

// Inbound is one decoded client frame. Each operation has its own type and
// handlers dispatch with a type switch.
type Inbound interface {
	EventType() string
}

type GetConversations struct{}

type GetHistory struct {
	ConversationID types.ID `json:"conversation_id"`
}

// ChatMessage is a send request. Clients also send sender_id, sender_type
// and customer_id; those are not decoded since the connection identity wins.
type ChatMessage struct {
	Content        string   `json:"content"`
	MediaURL       string   `json:"media_url"`
	ConversationID types.ID `json:"conversation_id"`
}

type MarkRead struct {
	MessageID types.ID `json:"message_id"`
}

type GetUnreadCount struct{}

type SetPriority struct {
	ConversationID types.ID `json:"conversation_id"`
	Priority       string   `json:"priority"`
}

type FilterConversations struct {
	Filter string `json:"filter"`
}

type SearchConversations struct {
	Query string `json:"query"`
}

func (GetConversations) EventType() string    { return types.EventGetConversations }
func (GetHistory) EventType() string          { return types.EventGetHistory }
func (ChatMessage) EventType() string         { return types.EventChatMessage }
func (MarkRead) EventType() string            { return types.EventMarkRead }
func (GetUnreadCount) EventType() string      { return types.EventGetUnreadCount }
func (SetPriority) EventType() string         { return types.EventSetPriority }
func (FilterConversations) EventType() string { return types.EventFilterConversations }
func (SearchConversations) EventType() string { return types.EventSearchConversations }

// DecodeInbound parses a frame into its concrete event type.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var ev Inbound
	switch envelope.Type {
	case types.EventGetConversations:
		return GetConversations{}, nil
	case types.EventGetUnreadCount:
		return GetUnreadCount{}, nil
	case types.EventGetHistory:
		ev = &GetHistory{}
	case types.EventChatMessage:
		ev = &ChatMessage{}
	case types.EventMarkRead:
		ev = &MarkRead{}
	case types.EventSetPriority:
		ev = &SetPriority{}
	case types.EventFilterConversations:
		ev = &FilterConversations{}
	case types.EventSearchConversations:
		ev = &SearchConversations{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
	}
	return deref(ev), nil
}

func deref(ev Inbound) Inbound {
	switch e := ev.(type) {
	case *GetHistory:
		return *e
	case *ChatMessage:
		return *e
	case *MarkRead:
		return *e
	case *SetPriority:
		return *e
	case *FilterConversations:
		return *e
	case *SearchConversations:
		return *e
	}
	return ev
}
