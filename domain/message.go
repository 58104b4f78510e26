// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are validated by the domain; only their status evolves.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SystemSender is the reserved author of server-generated messages.
// It is exempt from the participant check.
const SystemSender = "system"

type MessageType string

const (
	TypeMessage MessageType = "message"
	TypeSystem  MessageType = "system"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	MessageSent:      0,
	MessageDelivered: 1,
	MessageRead:      2,
}

// Message represents a chat event accepted by the core.
type Message struct {
	ID        uuid.UUID // unique identifier, server assigned
	ClientID  string    // request id supplied by the sender, may be empty
	From      string
	Text      string
	Type      MessageType
	Timestamp time.Time
	Status    MessageStatus
}

func NewMessage(from, text, clientID string, at time.Time) Message {
	msgType := TypeMessage
	if from == SystemSender {
		msgType = TypeSystem
	}
	return Message{
		ID:        uuid.New(),
		ClientID:  clientID,
		From:      from,
		Text:      text,
		Type:      msgType,
		Timestamp: at,
		Status:    MessageSent,
	}
}

// Advance moves the status forward. It returns false when the transition
// would go backwards or leave the terminal failed state.
func (m *Message) Advance(next MessageStatus) bool {
	if m.Status == MessageFailed {
		return false
	}
	if next == MessageFailed {
		if m.Status != MessageSent {
			return false
		}
		m.Status = MessageFailed
		return true
	}
	cur, ok := statusRank[m.Status]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok || nxt <= cur {
		return false
	}
	m.Status = next
	return true
}
