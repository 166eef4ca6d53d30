package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// ConnectionOptions tunes one socket.
type ConnectionOptions struct {
	// BufferSize is the number of outbound frames queued ahead of the writer.
	BufferSize   int
	WriteTimeout time.Duration
	// ReadLimit caps inbound frame size in bytes; zero means no limit.
	ReadLimit int64
}

// DefaultConnectionOptions matches the websocket config defaults.
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		BufferSize:   100,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    1 << 20,
	}
}

// Connection wraps a gorilla socket with a single writer goroutine, so any
// number of broadcasters may call WriteJSON concurrently.
type Connection struct {
	conn     *websocket.Conn
	writeCh  chan []byte
	id       string
	role     types.Role
	identity int64
	opts     ConnectionOptions

	alive     atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ interfaces.Connection = (*Connection)(nil)

// NewConnection tags conn with role and identity and starts its writer.
func NewConnection(conn *websocket.Conn, role types.Role, identity int64, opts ConnectionOptions) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultConnectionOptions().BufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultConnectionOptions().WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:     conn,
		writeCh:  make(chan []byte, opts.BufferSize),
		id:       uuid.NewString(),
		role:     role,
		identity: identity,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.alive.Store(true)

	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) Role() types.Role { return c.role }
func (c *Connection) Identity() int64  { return c.identity }

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

// WriteJSON queues v for the writer. It blocks for at most WriteTimeout when
// the queue is full.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ReadMessage returns the next text frame. Control frames are handled by
// gorilla; binary frames are skipped.
func (c *Connection) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// IsAlive reports whether a pong (or the initial connect) was seen since the
// last heartbeat.
func (c *Connection) IsAlive() bool { return c.alive.Load() }

// Heartbeat closes the connection if it never answered the previous ping.
// Otherwise it clears the alive flag and sends a new ping. It reports
// whether the connection survived.
func (c *Connection) Heartbeat() bool {
	if !c.alive.Swap(false) {
		_ = c.Close()
		return false
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		_ = c.Close()
		return false
	}
	return true
}

// CloseWithReason sends a close frame before tearing the socket down.
func (c *Connection) CloseWithReason(code int, reason string) error {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return c.Close()
}

// Close is idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
