package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Heartbeater pings every live socket and drops the silent ones.
// *websocket.Registry satisfies it.
type Heartbeater interface {
	Sweep() int
}

// Evictor forgets idle rate-limit keys. *router.RateLimiter satisfies it.
type Evictor interface {
	EvictIdle() int
}

type Options struct {
	PingInterval  time.Duration
	EvictInterval time.Duration
}

// Sweeper runs the periodic housekeeping of the chat core on a cron
// scheduler: the heartbeat pass over the registry and eviction of idle
// limiter keys.
type Sweeper struct {
	registry Heartbeater
	limiters []Evictor
	opts     Options
	log      *logrus.Entry

	mu      sync.Mutex
	cron    *cron.Cron
	done    chan struct{}
	running bool
}

func NewSweeper(registry Heartbeater, limiters []Evictor, opts Options, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		registry: registry,
		limiters: limiters,
		opts:     opts,
		log:      log,
	}
}

// Start schedules both jobs. The scheduler stops when ctx is done or on Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.opts.PingInterval <= 0 || s.opts.EvictInterval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	c := cron.New()
	if _, err := c.AddFunc(every(s.opts.PingInterval), func() { s.Heartbeat() }); err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}
	if _, err := c.AddFunc(every(s.opts.EvictInterval), func() { s.Evict() }); err != nil {
		return fmt.Errorf("failed to schedule eviction: %w", err)
	}
	c.Start()

	done := make(chan struct{})
	s.cron = c
	s.done = done
	s.running = true
	s.log.WithFields(logrus.Fields{
		"ping_interval":  s.opts.PingInterval.String(),
		"evict_interval": s.opts.EvictInterval.String(),
	}).Info("sweeper started")

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-done:
		}
	}()
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	c := s.cron
	s.cron = nil
	close(s.done)
	s.mu.Unlock()

	<-c.Stop().Done()
	s.log.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Heartbeat runs one liveness pass and returns the number of sockets
// terminated.
func (s *Sweeper) Heartbeat() int {
	if s.registry == nil {
		return 0
	}
	dropped := s.registry.Sweep()
	if dropped > 0 {
		s.log.WithField("terminated", dropped).Info("terminated unresponsive connections")
	}
	return dropped
}

// Evict drops idle keys from every limiter and returns the total.
func (s *Sweeper) Evict() int {
	total := 0
	for _, l := range s.limiters {
		total += l.EvictIdle()
	}
	if total > 0 {
		s.log.WithField("evicted", total).Debug("evicted idle rate limit keys")
	}
	return total
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
