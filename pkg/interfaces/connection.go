package interfaces

import "chatdesk/pkg/types"

// Connection is a live chat socket as seen by routing and session code.
// Implementations must make WriteJSON safe for concurrent callers.
type Connection interface {
	// ID is unique per socket, even when identities repeat.
	ID() string

	// Role reports whether the socket belongs to a customer or an admin.
	Role() types.Role

	// Identity is the customer or admin id taken from the connect path.
	Identity() int64

	WriteJSON(v any) error

	Close() error
}
