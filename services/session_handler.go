package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/errors"
	"pairchat/protocol"
	"pairchat/runtime"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Observer receives handler level events, typically prometheus counters.
type Observer interface {
	ObserveInbound(operation string)
	ObserveErrorReply(code string)
	ObserveLogin(kind string)
	ObserveEviction()
	ConnectionOpened()
	ConnectionClosed()
}

type noopObserver struct{}

func (noopObserver) ObserveInbound(string)    {}
func (noopObserver) ObserveErrorReply(string) {}
func (noopObserver) ObserveLogin(string)      {}
func (noopObserver) ObserveEviction()         {}
func (noopObserver) ConnectionOpened()        {}
func (noopObserver) ConnectionClosed()        {}

type Config struct {
	// RateLimitPerSecond <= 0 disables inbound rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
	Clock              func() time.Time // nil => time.Now
}

// connState is owned by one transport connection. The transport reads
// sequentially, the mutex only guards against Pong and Disconnect racing
// with an in-flight Receive.
type connState struct {
	mu      sync.Mutex
	link    *runtime.Link
	state   State
	session *runtime.Session
	limiter *rate.Limiter
}

// SessionHandler is the entry point the transport calls into. It owns no
// shared data itself; registry, store and router are passed in.
type SessionHandler struct {
	log      *slog.Logger
	registry *runtime.Registry
	store    *runtime.ConversationStore
	router   *runtime.Router
	observer Observer
	conf     Config

	mu    sync.RWMutex
	conns map[contract.Connection]*connState
}

func NewSessionHandler(
	log *slog.Logger,
	registry *runtime.Registry,
	store *runtime.ConversationStore,
	router *runtime.Router,
	observer Observer,
	conf Config,
) *SessionHandler {
	if observer == nil {
		observer = noopObserver{}
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &SessionHandler{
		log:      log,
		registry: registry,
		store:    store,
		router:   router,
		observer: observer,
		conf:     conf,
		conns:    make(map[contract.Connection]*connState),
	}
}

// Accept starts tracking a new transport connection.
func (h *SessionHandler) Accept(conn contract.Connection) {
	st := &connState{link: runtime.NewLink(conn), state: Unauthenticated}
	if h.conf.RateLimitPerSecond > 0 {
		burst := h.conf.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		st.limiter = rate.NewLimiter(rate.Limit(h.conf.RateLimitPerSecond), burst)
	}
	h.mu.Lock()
	h.conns[conn] = st
	h.mu.Unlock()
	h.observer.ConnectionOpened()
	h.log.Debug("Connection accepted", "link_id", st.link.ID(), "remote", conn.RemoteAddr())
}

func (h *SessionHandler) lookup(conn contract.Connection) *connState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[conn]
}

// Receive handles one inbound envelope. Failures are answered on the same
// connection and never close it.
func (h *SessionHandler) Receive(conn contract.Connection, raw []byte) {
	st := h.lookup(conn)
	if st == nil {
		h.log.Warn("Envelope from unknown connection", "remote", conn.RemoteAddr())
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state == Closed {
		return
	}
	if st.session != nil && (st.session.Closed() || st.session.Liveness() == runtime.Dead) {
		// Displaced, or declared dead by the liveness monitor and awaiting Expire
		st.state = Closed
		return
	}
	if st.session != nil {
		st.session.MarkAlive(h.conf.Clock())
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Panic while handling envelope", "link_id", st.link.ID(), "panic", fmt.Sprint(r))
			h.replyError(st, protocol.Error(errors.ErrInternal), errors.ErrInternal)
		}
	}()

	if st.limiter != nil && !st.limiter.Allow() {
		h.replyError(st, protocol.Error(errors.ErrRateLimited), errors.ErrRateLimited)
		return
	}

	req, err := protocol.Decode(raw)
	if err != nil {
		h.log.Debug("Rejected envelope", "link_id", st.link.ID(), "error", err)
		h.replyError(st, protocol.Error(err), err)
		return
	}
	h.observer.ObserveInbound(req.Operation())

	switch r := req.(type) {
	case protocol.Login:
		h.login(st, r)
	case protocol.StartChat:
		h.startChat(st, r)
	case protocol.SendMessage:
		h.sendMessage(st, r)
	case protocol.GetUserList:
		h.userList(st)
	case protocol.SyncChats:
		h.syncChats(st)
	case protocol.MarkRead:
		h.markRead(st, r)
	case protocol.Logout:
		h.logout(st)
	default:
		err := fmt.Errorf("%w: %s", errors.ErrUnknownOperation, req.Operation())
		h.replyError(st, protocol.Error(err), err)
	}
}

// Pong answers the pending heartbeat of the connection's session.
func (h *SessionHandler) Pong(conn contract.Connection) {
	st := h.lookup(conn)
	if st == nil {
		return
	}
	st.mu.Lock()
	s := st.session
	st.mu.Unlock()
	if s != nil {
		s.MarkAlive(h.conf.Clock())
	}
}

// Disconnect is called by the transport once the connection is gone.
// The session keeps a tombstone so a quick reconnect resumes it.
func (h *SessionHandler) Disconnect(conn contract.Connection) {
	h.mu.Lock()
	st, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.observer.ConnectionClosed()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == Closed && st.session == nil {
		return
	}
	st.state = Closed
	s := st.session
	st.session = nil
	if s == nil {
		return
	}
	s.Detach()
	if h.registry.Suspend(s) {
		h.log.Info("User disconnected", "session_id", s.ID(), "nickname", s.Nickname())
		h.router.Broadcast(protocol.UserLeft(s.ID()), s.ID())
	}
}

// Expire tears down a session the liveness monitor declared dead. Its
// connection is unreachable, so nothing is sent to it.
func (h *SessionHandler) Expire(s *runtime.Session) {
	if link := s.Detach(); link != nil {
		if err := link.Close(runtime.CloseGoingAway, runtime.ReasonHeartbeat); err != nil {
			h.log.Debug("Unable to close expired link", "session_id", s.ID(), "error", err)
		}
	}
	if !h.registry.Suspend(s) {
		return
	}
	h.observer.ObserveEviction()
	h.log.Info("Session evicted", "session_id", s.ID(), "nickname", s.Nickname(), "reason", errors.ErrHeartbeatTimeout)
	h.router.Broadcast(protocol.UserLeft(s.ID()), s.ID())
}

// Shutdown closes every open connection. Sessions are torn down by the
// Disconnect calls the transport makes afterwards.
func (h *SessionHandler) Shutdown() {
	h.mu.RLock()
	states := lo.Values(h.conns)
	h.mu.RUnlock()
	for _, st := range states {
		if err := st.link.Close(runtime.CloseGoingAway, runtime.ReasonServerStop); err != nil {
			h.log.Debug("Unable to close link on shutdown", "link_id", st.link.ID(), "error", err)
		}
	}
	h.log.Info("Closed connections", "count", len(states))
}

// Connections returns the number of tracked transport connections.
func (h *SessionHandler) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *SessionHandler) reply(st *connState, env protocol.Envelope) {
	if st.session != nil {
		h.router.SendToSession(st.session, env)
		return
	}
	if err := h.router.Reply(st.link, env); err != nil {
		h.log.Debug("Reply failed", "link_id", st.link.ID(), "type", env.EnvelopeType(), "error", err)
	}
}

func (h *SessionHandler) replyError(st *connState, env protocol.Envelope, err error) {
	h.observer.ObserveErrorReply(errors.Code(err))
	h.reply(st, env)
}

func (h *SessionHandler) login(st *connState, r protocol.Login) {
	if st.state == Authenticated {
		h.replyError(st, protocol.LoginError(errors.ErrAlreadyAuthenticated), errors.ErrAlreadyAuthenticated)
		return
	}
	token := r.SessionID
	if token == "" {
		token = uuid.NewString()
	}
	res, err := h.registry.Register(st.link, r.Nickname, token)
	if err != nil {
		h.log.Debug("Login refused", "link_id", st.link.ID(), "error", err)
		h.replyError(st, protocol.LoginError(err), err)
		return
	}
	s := res.Session
	st.session = s
	st.state = Authenticated

	kind := "new"
	switch {
	case res.Displaced != nil:
		kind = "displaced"
	case res.Resumed:
		kind = "resumed"
	}
	h.observer.ObserveLogin(kind)
	h.log.Info("User logged in", "session_id", s.ID(), "nickname", s.Nickname(), "kind", kind)

	me := protocol.NewUserView(s.User())
	h.router.SendToSession(s, protocol.LoginSuccess(me, token))
	h.router.SendToSession(s, protocol.UserList(h.otherUsers(s)))
	if chats := h.chatViews(s); len(chats) > 0 {
		h.router.SendToSession(s, protocol.ChatList(chats))
	}
	h.router.Broadcast(protocol.UserJoined(me), s.ID())
}

func (h *SessionHandler) startChat(st *connState, r protocol.StartChat) {
	if st.state != Authenticated {
		h.replyError(st, protocol.StartChatError(errors.ErrNotAuthenticated), errors.ErrNotAuthenticated)
		return
	}
	s := st.session
	target := h.registry.FindByID(r.TargetUserID)
	if target == nil {
		h.replyError(st, protocol.StartChatError(errors.ErrTargetNotFound), errors.ErrTargetNotFound)
		return
	}
	conv, created, err := h.store.GetOrCreate(s.ID(), target.ID())
	if err != nil {
		h.replyError(st, protocol.StartChatError(err), err)
		return
	}
	if created {
		h.log.Info("Chat started", "chat_id", conv.ID(), "by", s.ID())
	}
	h.router.SendToSession(s, protocol.ChatCreated(protocol.NewChatView(conv.View(s.ID()))))
	h.router.SendToSession(target, protocol.ChatCreated(protocol.NewChatView(conv.View(target.ID()))))
}

func (h *SessionHandler) sendMessage(st *connState, r protocol.SendMessage) {
	if st.state != Authenticated {
		h.replyError(st, protocol.MessageError(r.MessageID, errors.ErrNotAuthenticated), errors.ErrNotAuthenticated)
		return
	}
	s := st.session
	deliver := func(conv *runtime.Conversation, msg domain.Message) {
		for recipient, outcome := range h.router.RouteMessage(conv, msg, s, r.MessageID) {
			if recipient != s.ID() && outcome == runtime.Delivered {
				h.store.MarkDelivered(conv.ID(), msg.ID.String())
			}
		}
	}
	msg, duplicate, err := h.store.AppendAndDeliver(r.ChatID, s.ID(), r.Text, r.MessageID, deliver)
	if err != nil {
		h.replyError(st, protocol.MessageError(r.MessageID, err), err)
		return
	}
	if duplicate {
		h.log.Debug("Duplicate send acknowledged", "chat_id", r.ChatID, "message_id", r.MessageID)
		h.router.SendToSession(s, protocol.MessageSent(r.MessageID, msg))
	}
}

func (h *SessionHandler) userList(st *connState) {
	if st.state != Authenticated {
		h.replyError(st, protocol.Error(errors.ErrNotAuthenticated), errors.ErrNotAuthenticated)
		return
	}
	h.router.SendToSession(st.session, protocol.UserList(h.otherUsers(st.session)))
}

func (h *SessionHandler) syncChats(st *connState) {
	if st.state != Authenticated {
		h.replyError(st, protocol.Error(errors.ErrNotAuthenticated), errors.ErrNotAuthenticated)
		return
	}
	h.router.SendToSession(st.session, protocol.ChatList(h.chatViews(st.session)))
}

func (h *SessionHandler) markRead(st *connState, r protocol.MarkRead) {
	if st.state != Authenticated {
		h.replyError(st, protocol.Error(errors.ErrNotAuthenticated), errors.ErrNotAuthenticated)
		return
	}
	s := st.session
	if _, err := h.store.MarkRead(r.ChatID, s.ID()); err != nil {
		h.replyError(st, protocol.Error(err), err)
		return
	}
	env := protocol.MessagesRead(r.ChatID, s.ID())
	h.router.SendToSession(s, env)
	if other := h.registry.FindByID(h.store.Get(r.ChatID).Counterpart(s.ID())); other != nil {
		h.router.SendToSession(other, env)
	}
}

func (h *SessionHandler) logout(st *connState) {
	st.state = Closed
	s := st.session
	st.session = nil
	if s != nil && h.registry.Unregister(s) {
		h.log.Info("User logged out", "session_id", s.ID(), "nickname", s.Nickname())
		h.router.Broadcast(protocol.UserLeft(s.ID()), s.ID())
	}
	if s != nil {
		s.Detach()
	}
	if err := st.link.Close(runtime.CloseNormal, runtime.ReasonLogout); err != nil {
		h.log.Debug("Unable to close link on logout", "link_id", st.link.ID(), "error", err)
	}
}

func (h *SessionHandler) otherUsers(self *runtime.Session) []protocol.UserView {
	others := lo.Filter(h.registry.ListAll(), func(s *runtime.Session, _ int) bool {
		return s.ID() != self.ID()
	})
	return lo.Map(others, func(s *runtime.Session, _ int) protocol.UserView {
		return protocol.NewUserView(s.User())
	})
}

func (h *SessionHandler) chatViews(s *runtime.Session) []protocol.ChatView {
	return lo.Map(h.store.ConversationsFor(s.ID()), func(c *runtime.Conversation, _ int) protocol.ChatView {
		return protocol.NewChatView(c.View(s.ID()))
	})
}
