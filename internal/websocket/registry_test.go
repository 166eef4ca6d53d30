package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

type fakeConn struct {
	id       string
	role     types.Role
	identity int64

	mu    sync.Mutex
	alive bool
	dead  bool
}

func (c *fakeConn) ID() string          { return c.id }
func (c *fakeConn) Role() types.Role    { return c.role }
func (c *fakeConn) Identity() int64     { return c.identity }
func (c *fakeConn) WriteJSON(any) error { return nil }
func (c *fakeConn) Close() error        { return nil }

func (c *fakeConn) Heartbeat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		c.dead = true
		return false
	}
	c.alive = false
	return true
}

func customer(id string, identity int64) *fakeConn {
	return &fakeConn{id: id, role: types.RoleCustomer, identity: identity, alive: true}
}

func admin(id string, identity int64) *fakeConn {
	return &fakeConn{id: id, role: types.RoleAdmin, identity: identity, alive: true}
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	c := customer("c1", 42)

	r.Register(c)
	r.Register(c)
	assert.Equal(t, 1, r.Stats().Connections)
	assert.True(t, r.IsCustomerOnline(42))

	r.Unregister(c)
	r.Unregister(c)
	assert.Zero(t, r.Stats().Connections)
	assert.False(t, r.IsCustomerOnline(42))

	r.Register(nil)
	r.Unregister(nil)
}

func TestRegistry_PresenceWithSeveralTabs(t *testing.T) {
	r := NewRegistry()
	tab1, tab2 := customer("t1", 42), customer("t2", 42)
	r.Register(tab1)
	r.Register(tab2)

	r.Unregister(tab1)
	assert.True(t, r.IsCustomerOnline(42), "second tab keeps the customer online")

	r.Unregister(tab2)
	assert.False(t, r.IsCustomerOnline(42))
}

func TestRegistry_AdminIdentityIsNotCustomerPresence(t *testing.T) {
	r := NewRegistry()
	r.Register(admin("a1", 42))
	assert.False(t, r.IsCustomerOnline(42))
}

func TestRegistry_UnregisterStaleInstance(t *testing.T) {
	r := NewRegistry()
	c := customer("same-id", 1)
	impostor := customer("same-id", 1)
	r.Register(c)

	r.Unregister(impostor)
	assert.Equal(t, 1, r.Stats().Connections)
}

func TestRegistry_ForEachFilters(t *testing.T) {
	r := NewRegistry()
	r.Register(customer("c1", 1))
	r.Register(admin("a1", 10))
	r.Register(admin("a2", 11))

	var ids []string
	r.ForEach(func(c interfaces.Connection) bool {
		return c.Role() == types.RoleAdmin
	}, func(c interfaces.Connection) {
		ids = append(ids, c.ID())
	})
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	count := 0
	r.ForEach(nil, func(interfaces.Connection) { count++ })
	assert.Equal(t, 3, count)
}

func TestRegistry_ForEachMayReenter(t *testing.T) {
	r := NewRegistry()
	r.Register(customer("c1", 1))
	r.Register(customer("c2", 2))

	// Unregistering from inside the callback must not deadlock.
	r.ForEach(nil, func(c interfaces.Connection) {
		r.Unregister(c)
	})
	assert.Zero(t, r.Stats().Connections)
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry()
	r.Register(customer("c1", 1))
	r.Register(customer("c2", 1))
	r.Register(customer("c3", 2))
	r.Register(admin("a1", 10))

	assert.Equal(t, RegistryStats{Connections: 4, Customers: 2, Admins: 1}, r.Stats())
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry()
	answered := customer("c1", 1)
	silent := customer("c2", 2)
	r.Register(answered)
	r.Register(silent)

	assert.Zero(t, r.Sweep(), "first round only pings")

	// c1 answers its ping, c2 stays silent.
	answered.mu.Lock()
	answered.alive = true
	answered.mu.Unlock()

	assert.Equal(t, 1, r.Sweep())
	assert.True(t, silent.dead)
	assert.False(t, answered.dead)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := customer(fmt.Sprintf("c%d", i), int64(i%5+1))
			r.Register(c)
			r.ForEach(nil, func(interfaces.Connection) {})
			_ = r.IsCustomerOnline(c.identity)
			r.Unregister(c)
		}(i)
	}
	wg.Wait()

	stats := r.Stats()
	require.Zero(t, stats.Connections)
	assert.Zero(t, stats.Customers)
}
