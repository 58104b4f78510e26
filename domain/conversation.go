// Package domain contains core concepts of the chat system.
// This file defines pairwise Conversations and their invariants.
// Conversations are not safe for concurrent use; the owner serializes access.
package domain

import (
	"sort"
	"strings"
	"time"

	"pairchat/errors"
)

// ConversationID is symmetric: the same pair always yields the same id.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

type Conversation struct {
	ID           string
	Participants [2]string
	Messages     []Message
	Created      time.Time
	LastActivity time.Time
	unread       map[string]int
}

func NewConversation(a, b string, at time.Time) (*Conversation, error) {
	if a == b {
		return nil, errors.ErrSelfConversation
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return &Conversation{
		ID:           strings.Join(ids, ":"),
		Participants: [2]string{ids[0], ids[1]},
		Created:      at,
		LastActivity: at,
		unread:       map[string]int{ids[0]: 0, ids[1]: 0},
	}, nil
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Counterpart returns the other participant, or "" if userID is not one.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

// Append stores an already validated message. The counterpart of the sender
// gets one more unread message; system messages count for both.
func (c *Conversation) Append(m Message) error {
	if m.From != SystemSender && !c.HasParticipant(m.From) {
		return errors.ErrNotAParticipant
	}
	c.Messages = append(c.Messages, m)
	c.LastActivity = m.Timestamp
	for _, p := range c.Participants {
		if p != m.From {
			c.unread[p]++
		}
	}
	return nil
}

func (c *Conversation) UnreadCount(userID string) int {
	return c.unread[userID]
}

// MarkRead resets the reader's counter and flags every message the reader
// did not author as read. It returns how many messages changed status.
func (c *Conversation) MarkRead(readerID string) (int, error) {
	if !c.HasParticipant(readerID) {
		return 0, errors.ErrNotAParticipant
	}
	changed := 0
	for i := range c.Messages {
		if c.Messages[i].From == readerID {
			continue
		}
		if c.Messages[i].Advance(MessageRead) {
			changed++
		}
	}
	c.unread[readerID] = 0
	return changed, nil
}

// Find returns the index of the message with the given id, or -1.
func (c *Conversation) Find(id string) int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].ID.String() == id {
			return i
		}
	}
	return -1
}

// ConversationView is a detached copy rendered for one participant.
type ConversationView struct {
	ID           string
	Participants []string
	Messages     []Message
	Created      time.Time
	LastActivity time.Time
	UnreadCount  int
}

func (c *Conversation) View(viewerID string) ConversationView {
	messages := make([]Message, len(c.Messages))
	copy(messages, c.Messages)
	return ConversationView{
		ID:           c.ID,
		Participants: []string{c.Participants[0], c.Participants[1]},
		Messages:     messages,
		Created:      c.Created,
		LastActivity: c.LastActivity,
		UnreadCount:  c.unread[viewerID],
	}
}
