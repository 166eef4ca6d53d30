package websocket

import (
	"sync"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// heartbeater is implemented by connections that take part in the
// liveness sweep.
type heartbeater interface {
	Heartbeat() bool
}

// Registry tracks live connections by connection id. It doubles as the
// presence registry: a customer is online while any of their sockets is
// registered.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection
	customers   map[int64]int
}

var _ interfaces.Registry = (*Registry)(nil)

// RegistryStats is a point-in-time count of registered sockets.
type RegistryStats struct {
	Connections int `json:"connections"`
	Customers   int `json:"customers_online"`
	Admins      int `json:"admin_connections"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		customers:   make(map[int64]int),
	}
}

// Register adds conn. Registering the same connection twice is a no-op;
// other sockets with the same identity are left alone.
func (r *Registry) Register(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return
	}
	r.connections[conn.ID()] = conn
	if conn.Role() == types.RoleCustomer {
		r.customers[conn.Identity()]++
	}
}

// Unregister removes conn. Safe to call for unknown or already removed
// connections.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.ID()]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, conn.ID())
	if conn.Role() == types.RoleCustomer {
		if r.customers[conn.Identity()] <= 1 {
			delete(r.customers, conn.Identity())
		} else {
			r.customers[conn.Identity()]--
		}
	}
}

// ForEach calls fn for every registered connection accepted by match. fn
// runs on a snapshot, outside the lock, so it may block or re-enter the
// registry.
func (r *Registry) ForEach(match func(interfaces.Connection) bool, fn func(interfaces.Connection)) {
	for _, conn := range r.snapshot() {
		if match == nil || match(conn) {
			fn(conn)
		}
	}
}

func (r *Registry) snapshot() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// IsCustomerOnline reports whether the customer holds at least one socket.
func (r *Registry) IsCustomerOnline(customerID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.customers[customerID] > 0
}

// Stats returns registry statistics for the health endpoint.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{
		Connections: len(r.connections),
		Customers:   len(r.customers),
	}
	for _, conn := range r.connections {
		if conn.Role() == types.RoleAdmin {
			stats.Admins++
		}
	}
	return stats
}

// Sweep runs one heartbeat round over every connection that supports it and
// returns how many were terminated. Terminated sockets unregister themselves
// when their read loop exits.
func (r *Registry) Sweep() int {
	terminated := 0
	for _, conn := range r.snapshot() {
		hb, ok := conn.(heartbeater)
		if !ok {
			continue
		}
		if !hb.Heartbeat() {
			terminated++
		}
	}
	return terminated
}
