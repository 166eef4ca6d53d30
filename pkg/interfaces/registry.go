package interfaces

// Registry is the presence set of live connections.
type Registry interface {
	Register(conn Connection)

	// Unregister is idempotent and removes only the given instance.
	Unregister(conn Connection)

	// ForEach calls fn for every connection matching match. fn runs outside
	// the registry lock and may block on the connection.
	ForEach(match func(Connection) bool, fn func(Connection))

	IsCustomerOnline(customerID int64) bool
}
