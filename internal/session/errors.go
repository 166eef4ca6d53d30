package session

import (
	"errors"

	"chatdesk/internal/router"
	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// Frame decoding errors. Frames failing with these are dropped silently.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// Validation errors, reported to the requester only.
var (
	ErrConversationIDRequired = errors.New("conversation id is required")
	ErrMessageIDRequired      = errors.New("message id is required")
	ErrEmptyMessage           = errors.New("message has neither content nor media")
)

// RateLimitMessage is the client-visible text for a rejected send.
const RateLimitMessage = "Rate limit exceeded. Please wait before sending more messages."

// ClientMessage maps err to the text a client may see. Errors without a
// fixed wording get fallback so internal detail never leaves the process.
func ClientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, router.ErrRateLimited):
		return RateLimitMessage
	case errors.Is(err, ErrConversationIDRequired):
		return "Conversation ID is required"
	case errors.Is(err, ErrMessageIDRequired):
		return "Message ID is required"
	case errors.Is(err, ErrEmptyMessage):
		return "Message content or media is required"
	case errors.Is(err, types.ErrInvalidPriority):
		return "Invalid priority level"
	case errors.Is(err, interfaces.ErrConversationNotFound):
		return "Conversation not found"
	case errors.Is(err, interfaces.ErrMessageNotFound):
		return "Message not found"
	}
	return fallback
}

// IsClientError reports whether err was caused by the request rather than
// the server.
func IsClientError(err error) bool {
	return ClientMessage(err, "") != ""
}
