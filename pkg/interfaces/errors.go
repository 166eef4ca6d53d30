package interfaces

import "errors"

// Store errors shared across components.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrStoreClosed          = errors.New("store is closed")
)
