package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"pairchat/domain"
)

type Liveness int32

const (
	Alive Liveness = iota
	AwaitingPong
	Dead
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case AwaitingPong:
		return "awaiting_pong"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// Session is an authenticated identity. Liveness is written by two actors,
// the connection's reader and the liveness monitor, so every transition is a CAS.
type Session struct {
	id       string
	nickname string
	token    string

	mu   sync.RWMutex
	link *Link

	liveness     atomic.Int32
	lastActivity atomic.Int64
	closed       atomic.Bool
}

func newSession(id, nickname, token string, link *Link, now time.Time) *Session {
	s := &Session{id: id, nickname: nickname, token: token, link: link}
	s.lastActivity.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Nickname() string { return s.nickname }
func (s *Session) Token() string    { return s.token }

// Link returns nil once the connection has been detached.
func (s *Session) Link() *Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.link
}

// Detach clears the connection and returns it.
func (s *Session) Detach() *Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	link := s.link
	s.link = nil
	return link
}

func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) Liveness() Liveness {
	return Liveness(s.liveness.Load())
}

// MarkAlive answers a pending heartbeat. A dead session stays dead.
func (s *Session) MarkAlive(now time.Time) bool {
	s.Touch(now)
	return s.liveness.CompareAndSwap(int32(AwaitingPong), int32(Alive)) || s.Liveness() == Alive
}

// AwaitPong is called by the monitor before pinging.
func (s *Session) AwaitPong() bool {
	return s.liveness.CompareAndSwap(int32(Alive), int32(AwaitingPong))
}

// Kill declares a silent session dead. Only one caller wins.
func (s *Session) Kill() bool {
	return s.liveness.CompareAndSwap(int32(AwaitingPong), int32(Dead))
}

func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) markClosed() bool {
	return s.closed.CompareAndSwap(false, true)
}

func (s *Session) User() domain.User {
	status := domain.StatusActive
	switch {
	case s.Closed() || s.Liveness() == Dead:
		status = domain.StatusOffline
	case s.Liveness() == AwaitingPong:
		status = domain.StatusAway
	}
	return domain.User{
		ID:           s.id,
		Nickname:     s.nickname,
		Online:       !s.Closed() && s.Link() != nil,
		Status:       status,
		LastActivity: s.LastActivity(),
	}
}
