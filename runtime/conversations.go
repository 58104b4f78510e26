package runtime

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
)

type dedupKey struct {
	from     string
	clientID string
}

// Conversation guards one domain.Conversation. mu is the single
// serialization point for its history, so unrelated conversations never
// contend with each other. dispatch is held across an append and the
// delivery of that message, so every participant sees appends in order.
type Conversation struct {
	mu       sync.Mutex
	dispatch sync.Mutex
	state  *domain.Conversation
	recent *lru.Cache[dedupKey, int] // nil when de-dup is disabled
}

// ID and participants never change after creation.
func (c *Conversation) ID() string { return c.state.ID }

func (c *Conversation) Participants() [2]string { return c.state.Participants }

func (c *Conversation) HasParticipant(userID string) bool {
	return c.state.HasParticipant(userID)
}

func (c *Conversation) Counterpart(userID string) string {
	return c.state.Counterpart(userID)
}

func (c *Conversation) View(viewerID string) domain.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.View(viewerID)
}

func (c *Conversation) UnreadCount(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.UnreadCount(userID)
}

func (c *Conversation) lastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.LastActivity
}

type StoreConfig struct {
	// DedupWindow is the number of client request ids remembered per
	// conversation. Zero disables de-duplication.
	DedupWindow int
	Filter      contract.TextFilter
	Clock       func() time.Time // nil => time.Now
}

type StoreStats struct {
	Conversations int   `json:"conversations"`
	Messages      int   `json:"messages"`
	Censored      int64 `json:"censored"`
}

type ConversationStore struct {
	censored      atomic.Int64 // messages altered by the filter
	mu            sync.RWMutex
	conversations map[string]*Conversation
	byUser        map[string]map[string]struct{}
	conf          StoreConfig
	log           *slog.Logger
}

func NewConversationStore(log *slog.Logger, conf StoreConfig) *ConversationStore {
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &ConversationStore{
		conversations: make(map[string]*Conversation),
		byUser:        make(map[string]map[string]struct{}),
		conf:          conf,
		log:           log,
	}
}

// GetOrCreate returns the conversation for the unordered pair, creating it
// on first use. Concurrent calls for the same pair observe one object.
func (cs *ConversationStore) GetOrCreate(a, b string) (*Conversation, bool, error) {
	if a == b {
		return nil, false, errors.ErrSelfConversation
	}
	id := domain.ConversationID(a, b)

	cs.mu.RLock()
	c, ok := cs.conversations[id]
	cs.mu.RUnlock()
	if ok {
		return c, false, nil
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.conversations[id]; ok {
		return c, false, nil
	}
	state, err := domain.NewConversation(a, b, cs.conf.Clock())
	if err != nil {
		return nil, false, err
	}
	c = &Conversation{state: state}
	if cs.conf.DedupWindow > 0 {
		recent, err := lru.New[dedupKey, int](cs.conf.DedupWindow)
		if err != nil {
			return nil, false, err
		}
		c.recent = recent
	}
	cs.conversations[id] = c
	for _, p := range state.Participants {
		if cs.byUser[p] == nil {
			cs.byUser[p] = make(map[string]struct{})
		}
		cs.byUser[p][id] = struct{}{}
	}
	cs.log.Debug("Conversation created", "chat_id", id)
	return c, true, nil
}

func (cs *ConversationStore) Get(id string) *Conversation {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.conversations[id]
}

// ConversationsFor returns the user's conversations, most recent activity first.
func (cs *ConversationStore) ConversationsFor(userID string) []*Conversation {
	cs.mu.RLock()
	convs := lo.Map(lo.Keys(cs.byUser[userID]), func(id string, _ int) *Conversation {
		return cs.conversations[id]
	})
	cs.mu.RUnlock()

	type entry struct {
		c  *Conversation
		at time.Time
	}
	entries := lo.Map(convs, func(c *Conversation, _ int) entry { return entry{c, c.lastActivity()} })
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].c.ID() < entries[j].c.ID()
		}
		return entries[i].at.After(entries[j].at)
	})
	return lo.Map(entries, func(e entry, _ int) *Conversation { return e.c })
}

// AppendMessage checks, in order, that the conversation exists, that the
// sender takes part in it and that the text is valid. A retried send with a
// client id already in the window returns the stored message with
// duplicate set and changes nothing.
func (cs *ConversationStore) AppendMessage(id, fromID, text, clientID string) (domain.Message, bool, error) {
	c := cs.Get(id)
	if c == nil {
		return domain.Message{}, false, errors.ErrConversationNotFound
	}
	return cs.appendTo(c, fromID, text, clientID)
}

// DeliverFunc writes an accepted message to the participants. It runs with
// the conversation's dispatch lock held and may call MarkDelivered.
type DeliverFunc func(c *Conversation, msg domain.Message)

// AppendAndDeliver appends like AppendMessage and hands a newly stored
// message to deliver before the next append on the same conversation can
// start. Duplicates are not delivered again.
func (cs *ConversationStore) AppendAndDeliver(id, fromID, text, clientID string, deliver DeliverFunc) (domain.Message, bool, error) {
	c := cs.Get(id)
	if c == nil {
		return domain.Message{}, false, errors.ErrConversationNotFound
	}
	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	msg, duplicate, err := cs.appendTo(c, fromID, text, clientID)
	if err != nil || duplicate || deliver == nil {
		return msg, duplicate, err
	}
	deliver(c, msg)
	return msg, false, nil
}

func (cs *ConversationStore) appendTo(c *Conversation, fromID, text, clientID string) (domain.Message, bool, error) {
	if fromID != domain.SystemSender && !c.HasParticipant(fromID) {
		return domain.Message{}, false, errors.ErrNotAParticipant
	}
	clean, err := domain.NormalizeText(text)
	if err != nil {
		return domain.Message{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := dedupKey{from: fromID, clientID: clientID}
	if clientID != "" && c.recent != nil {
		if idx, ok := c.recent.Get(key); ok {
			return c.state.Messages[idx], true, nil
		}
	}
	if cs.conf.Filter != nil {
		var hits []string
		clean, hits = cs.conf.Filter.Censor(clean)
		if len(hits) > 0 {
			cs.censored.Add(1)
			cs.log.Info("Message censored", "chat_id", c.ID(), "from", fromID, "words", len(hits))
		}
	}
	msg := domain.NewMessage(fromID, clean, clientID, cs.conf.Clock())
	if err := c.state.Append(msg); err != nil {
		return domain.Message{}, false, err
	}
	if clientID != "" && c.recent != nil {
		c.recent.Add(key, len(c.state.Messages)-1)
	}
	return msg, false, nil
}

// MarkDelivered advances one message to delivered. It reports whether the
// status changed.
func (cs *ConversationStore) MarkDelivered(id, messageID string) bool {
	c := cs.Get(id)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.state.Find(messageID)
	if idx < 0 {
		return false
	}
	return c.state.Messages[idx].Advance(domain.MessageDelivered)
}

func (cs *ConversationStore) MarkRead(id, readerID string) (int, error) {
	c := cs.Get(id)
	if c == nil {
		return 0, errors.ErrConversationNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.MarkRead(readerID)
}

func (cs *ConversationStore) View(id, viewerID string) (domain.ConversationView, error) {
	c := cs.Get(id)
	if c == nil {
		return domain.ConversationView{}, errors.ErrConversationNotFound
	}
	if !c.HasParticipant(viewerID) {
		return domain.ConversationView{}, errors.ErrNotAParticipant
	}
	return c.View(viewerID), nil
}

func (cs *ConversationStore) Stats() StoreStats {
	cs.mu.RLock()
	convs := lo.Values(cs.conversations)
	cs.mu.RUnlock()
	stats := StoreStats{Conversations: len(convs), Censored: cs.censored.Load()}
	for _, c := range convs {
		c.mu.Lock()
		stats.Messages += len(c.state.Messages)
		c.mu.Unlock()
	}
	return stats
}
