package router

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRateLimiter_Boundary(t *testing.T) {
	clock := newManualClock()
	rl := NewRateLimiter(20, time.Minute, clock.Now)

	for i := 0; i < 20; i++ {
		require.True(t, rl.Admit("42"), "message %d should be admitted", i+1)
		clock.Advance(50 * time.Millisecond)
	}
	assert.False(t, rl.Admit("42"), "21st message within the window")

	clock.Advance(61 * time.Second)
	assert.True(t, rl.Admit("42"), "admitted once the window has slid past")
}

func TestRateLimiter_RejectionNotRecorded(t *testing.T) {
	clock := newManualClock()
	rl := NewRateLimiter(2, time.Minute, clock.Now)

	require.True(t, rl.Admit("a"))
	clock.Advance(30 * time.Second)
	require.True(t, rl.Admit("a"))

	// Hammer while full; none of these may extend the window.
	for i := 0; i < 10; i++ {
		assert.False(t, rl.Admit("a"))
	}

	// First stamp expires, freeing exactly one slot.
	clock.Advance(31 * time.Second)
	assert.True(t, rl.Admit("a"))
	assert.False(t, rl.Admit("a"))
}

func TestRateLimiter_SlidingNotFixed(t *testing.T) {
	clock := newManualClock()
	rl := NewRateLimiter(3, time.Minute, clock.Now)

	require.True(t, rl.Admit("k"))
	clock.Advance(40 * time.Second)
	require.True(t, rl.Admit("k"))
	require.True(t, rl.Admit("k"))

	// A fixed window would have reset by now; the trailing window has not.
	clock.Advance(15 * time.Second)
	assert.False(t, rl.Admit("k"))

	clock.Advance(6 * time.Second)
	assert.True(t, rl.Admit("k"))
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, newManualClock().Now)

	assert.True(t, rl.Admit("1"))
	assert.False(t, rl.Admit("1"))
	assert.True(t, rl.Admit("2"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	clock := newManualClock()
	rl := NewRateLimiter(5, time.Minute, clock.Now)

	rl.Admit("old")
	clock.Advance(30 * time.Second)
	rl.Admit("fresh")

	assert.Zero(t, rl.EvictIdle())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, rl.EvictIdle())
	assert.Equal(t, 1, rl.Len())

	// An evicted key starts over with a full allowance.
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Admit("old"))
	}
	assert.False(t, rl.Admit("old"))
}

func TestRateLimiter_ConcurrentSameKey(t *testing.T) {
	rl := NewRateLimiter(20, time.Minute, nil)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Admit("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), admitted.Load())
}

func TestRateLimiter_ConcurrentEviction(t *testing.T) {
	clock := newManualClock()
	rl := NewRateLimiter(1000, time.Minute, clock.Now)

	var wg sync.WaitGroup
	var admitted atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if rl.Admit(fmt.Sprintf("k%d", j%4)) {
					admitted.Add(1)
				}
			}
		}(i)
	}
	for i := 0; i < 20; i++ {
		rl.EvictIdle()
	}
	wg.Wait()
	assert.Equal(t, int32(400), admitted.Load())
}
