package websocket

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chatdesk/pkg/types"
)

// Session consumes the frames of one connection. Frames are delivered one
// at a time in arrival order; Close is called exactly once when the read
// loop ends.
type Session interface {
	Open(ctx context.Context)
	HandleFrame(ctx context.Context, data []byte)
	Close()
}

// SessionFactory builds the session for a freshly accepted connection.
type SessionFactory func(conn *Connection) Session

// Handler upgrades requests on /ws/<role>/chat/<id> and runs the read loop
// for each accepted socket.
type Handler struct {
	role       types.Role
	newSession SessionFactory
	opts       ConnectionOptions
	upgrader   websocket.Upgrader
	log        *logrus.Entry
}

// NewHandler creates a handler for one role. checkOrigin may be nil to
// accept every origin.
func NewHandler(role types.Role, newSession SessionFactory, opts ConnectionOptions, checkOrigin func(*http.Request) bool, log *logrus.Entry) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		role:       role,
		newSession: newSession,
		opts:       opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      checkOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
		log: log.WithField("role", role),
	}
}

// ServeHTTP accepts the socket, then rejects it with 1008 when the path
// carries no usable identity. Nothing is registered for rejected sockets.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	identity, err := IdentityFromPath(r.URL.Path)
	conn := NewConnection(ws, h.role, identity, h.opts)
	if err != nil {
		h.log.WithField("path", r.URL.Path).Warn("rejecting socket without identity")
		_ = conn.CloseWithReason(websocket.ClosePolicyViolation, "No userId provided")
		return
	}

	go h.handleConnection(conn)
}

// IdentityFromPath parses the last path segment as a positive id.
func IdentityFromPath(p string) (int64, error) {
	p = strings.TrimSuffix(p, "/")
	id, err := types.ParseID(path.Base(p))
	if err != nil {
		return 0, ErrMissingIdentity
	}
	return id, nil
}

func (h *Handler) handleConnection(conn *Connection) {
	log := h.log.WithFields(logrus.Fields{
		"connection_id": conn.ID(),
		"identity":      conn.Identity(),
	})
	ctx := conn.Context()
	sess := h.newSession(conn)

	defer func() {
		sess.Close()
		_ = conn.Close()
		log.Debug("connection closed")
	}()

	sess.Open(ctx)
	log.Debug("connection opened")

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.WithError(err).Debug("websocket read error")
			}
			return
		}
		h.dispatch(ctx, sess, data, log)
	}
}

func (h *Handler) dispatch(ctx context.Context, sess Session, data []byte, log *logrus.Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("frame handler panicked")
		}
	}()
	sess.HandleFrame(ctx, data)
}
