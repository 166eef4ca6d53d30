package interfaces

// Broadcaster fans an outbound event out to live connections.
// Both methods return the number of connections the event was queued on.
type Broadcaster interface {
	// ToCustomer delivers to every connection of one customer identity.
	ToCustomer(customerID int64, event any) int

	// ToAdmins delivers to every admin connection except those whose
	// identity equals excludeAdminID. Zero excludes nobody.
	ToAdmins(event any, excludeAdminID int64) int
}
