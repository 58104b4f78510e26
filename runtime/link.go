package runtime

import (
	"sync"
	"sync/atomic"

	"pairchat/contract"
	"pairchat/errors"

	"github.com/google/uuid"
)

// Close codes sent by the core.
const (
	CloseNormal      = 1000
	CloseGoingAway   = 1001
	CloseDisplaced   = 4000
	ReasonLogout     = "logout"
	ReasonHeartbeat  = "heartbeat timeout"
	ReasonDisplaced  = "displaced"
	ReasonServerStop = "server shutdown"
)

// Link wraps one transport connection. Writes are serialized: a broadcast
// and a direct reply never reach the connection at the same time.
type Link struct {
	id     string
	conn   contract.Connection
	mu     sync.Mutex
	closed atomic.Bool
}

func NewLink(conn contract.Connection) *Link {
	return &Link{id: uuid.NewString(), conn: conn}
}

func (l *Link) ID() string { return l.id }

func (l *Link) RemoteAddr() string { return l.conn.RemoteAddr() }

func (l *Link) Send(data []byte) error {
	if l.closed.Load() {
		return errors.ErrLinkClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Send(data)
}

func (l *Link) Ping() error {
	if l.closed.Load() {
		return errors.ErrLinkClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Ping()
}

// Close closes the connection once; later calls are no-ops.
func (l *Link) Close(code int, reason string) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Close(code, reason)
}

func (l *Link) Closed() bool { return l.closed.Load() }
