package runtime

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pairchat/domain"
	"pairchat/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// tombstone remembers a session that lost its connection so a reconnect
// presenting the same token gets the same id back.
type tombstone struct {
	id        string
	token     string
	expiresAt time.Time
}

type RegisterResult struct {
	Session *Session
	// Displaced is the live session the new one replaced, if any.
	Displaced *Session
	// Resumed is set when the id was taken from a tombstone.
	Resumed bool
}

type RegistryConfig struct {
	TombstoneTTL time.Duration
	Clock        func() time.Time // nil => time.Now
}

type Registry struct {
	mu         sync.RWMutex
	byNickname map[string]*Session
	byID       map[string]*Session
	tombstones map[string]tombstone // nickname -> tombstone
	conf       RegistryConfig
	log        *slog.Logger
}

func NewRegistry(log *slog.Logger, conf RegistryConfig) *Registry {
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &Registry{
		byNickname: make(map[string]*Session),
		byID:       make(map[string]*Session),
		tombstones: make(map[string]tombstone),
		conf:       conf,
		log:        log,
	}
}

// Register validates the nickname and inserts a new session for the link.
// Uniqueness check and insertion happen under one lock, so concurrent logins
// for the same nickname have exactly one winner.
// A live holder with the same non-empty token is displaced: its link is
// closed once the lock is released and the new session inherits its id.
func (r *Registry) Register(link *Link, nickname, token string) (RegisterResult, error) {
	nick, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return RegisterResult{}, err
	}

	r.mu.Lock()
	now := r.conf.Clock()
	var res RegisterResult
	id := ""

	if existing, ok := r.byNickname[nick]; ok {
		if token == "" || existing.token != token {
			r.mu.Unlock()
			return RegisterResult{}, fmt.Errorf("%w: %q", errors.ErrNicknameTaken, nick)
		}
		r.removeLocked(existing)
		existing.markClosed()
		res.Displaced = existing
		id = existing.id
	} else if ts, ok := r.tombstones[nick]; ok {
		delete(r.tombstones, nick)
		if token != "" && ts.token == token && now.Before(ts.expiresAt) {
			id = ts.id
			res.Resumed = true
		}
	}

	if id == "" {
		id = link.ID()
	}
	if _, taken := r.byID[id]; taken {
		id = uuid.NewString()
		res.Resumed = false
	}

	s := newSession(id, nick, token, link, now)
	r.byNickname[nick] = s
	r.byID[id] = s
	res.Session = s
	r.mu.Unlock()

	if res.Displaced != nil {
		if old := res.Displaced.Detach(); old != nil {
			if err := old.Close(CloseDisplaced, ReasonDisplaced); err != nil {
				r.log.Debug("Unable to close displaced link", "session_id", id, "error", err)
			}
		}
		r.log.Info("Session displaced", "session_id", id, "nickname", nick)
	}
	return res, nil
}

// Unregister removes the session from every index. It reports whether this
// call removed it, so callers announce a departure exactly once.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.removeLocked(s)
	s.markClosed()
	return removed
}

// Suspend unregisters the session and keeps a tombstone for resumption.
func (r *Registry) Suspend(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.removeLocked(s)
	s.markClosed()
	if removed && r.conf.TombstoneTTL > 0 && s.token != "" {
		r.tombstones[s.nickname] = tombstone{
			id:        s.id,
			token:     s.token,
			expiresAt: r.conf.Clock().Add(r.conf.TombstoneTTL),
		}
	}
	return removed
}

func (r *Registry) removeLocked(s *Session) bool {
	current, ok := r.byID[s.id]
	if !ok || current != s {
		return false
	}
	delete(r.byID, s.id)
	if r.byNickname[s.nickname] == s {
		delete(r.byNickname, s.nickname)
	}
	return true
}

func (r *Registry) FindByNickname(nickname string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byNickname[nickname]
}

func (r *Registry) FindByID(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ListAll returns a snapshot sorted by nickname.
func (r *Registry) ListAll() []*Session {
	r.mu.RLock()
	sessions := lo.Values(r.byID)
	r.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].nickname < sessions[j].nickname
	})
	return sessions
}

// Sweep drops expired tombstones and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for nick, ts := range r.tombstones {
		if !now.Before(ts.expiresAt) {
			delete(r.tombstones, nick)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) Tombstones() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tombstones)
}
