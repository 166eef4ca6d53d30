package router

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by sender. A key may be
// admitted at most limit times within any trailing window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	senders map[string]*senderWindow
}

type senderWindow struct {
	mu      sync.Mutex
	stamps  []time.Time
	evicted bool
}

// NewRateLimiter creates a limiter. now may be nil to use the wall clock.
func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		senders: make(map[string]*senderWindow),
	}
}

// Admit prunes entries older than the window, then records and accepts the
// call unless the remaining count already reached the limit. Rejections are
// not recorded.
func (rl *RateLimiter) Admit(key string) bool {
	for {
		w := rl.lookup(key)

		w.mu.Lock()
		if w.evicted {
			// Lost a race with EvictIdle; the key has a fresh window now.
			w.mu.Unlock()
			continue
		}
		now := rl.now()
		w.prune(now.Add(-rl.window))
		if len(w.stamps) >= rl.limit {
			w.mu.Unlock()
			return false
		}
		w.stamps = append(w.stamps, now)
		w.mu.Unlock()
		return true
	}
}

func (rl *RateLimiter) lookup(key string) *senderWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w, ok := rl.senders[key]
	if !ok {
		w = &senderWindow{}
		rl.senders[key] = w
	}
	return w
}

// prune drops stamps at or before cutoff. Stamps are kept in arrival order.
func (w *senderWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// EvictIdle removes keys with nothing left inside the window and returns
// how many were removed. Admission results are unaffected.
func (rl *RateLimiter) EvictIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	evicted := 0
	for key, w := range rl.senders {
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.stamps) == 0 {
			w.evicted = true
			delete(rl.senders, key)
			evicted++
		}
		w.mu.Unlock()
	}
	return evicted
}

// Len reports the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.senders)
}
