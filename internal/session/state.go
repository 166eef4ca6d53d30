package session

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// State is the lifecycle position of a socket session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// lifecycle moves CONNECTING -> OPEN -> CLOSED, or straight to CLOSED.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) State() State { return State(l.state.Load()) }

func (l *lifecycle) open() bool {
	return l.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// close reports whether the session was open, so teardown runs once.
func (l *lifecycle) close() bool {
	return State(l.state.Swap(int32(StateClosed))) == StateOpen
}

// endpoint is the per-connection plumbing both session kinds share.
type endpoint struct {
	lifecycle
	svc  *Service
	conn interfaces.Connection
	log  *logrus.Entry
}

func newEndpoint(svc *Service, conn interfaces.Connection) endpoint {
	return endpoint{
		svc:  svc,
		conn: conn,
		log: svc.log.WithFields(logrus.Fields{
			"connection_id": conn.ID(),
			"role":          conn.Role(),
			"identity":      conn.Identity(),
		}),
	}
}

// decode returns nil for frames that should be dropped.
func (e *endpoint) decode(data []byte) Inbound {
	if e.State() != StateOpen {
		return nil
	}
	ev, err := DecodeInbound(data)
	if err != nil {
		e.log.WithError(err).Debug("ignoring frame")
		return nil
	}
	return ev
}

func (e *endpoint) reply(event any) {
	if err := e.conn.WriteJSON(event); err != nil {
		e.log.WithError(err).Warn("failed to reply")
	}
}

// fail logs err and sends the requester an error event. Client mistakes
// log at debug; everything else is a server fault.
func (e *endpoint) fail(ctx context.Context, err error, fallback string) {
	entry := e.log.WithError(err)
	if IsClientError(err) {
		entry.Debug(fallback)
	} else if ctx.Err() == nil {
		entry.Error(fallback)
	}
	e.reply(types.NewErrorEvent(ClientMessage(err, fallback)))
}
