// Package protocol converts envelopes between their JSON wire form and the
// typed requests and replies the session handler works with.
package protocol

import (
	"fmt"

	"pairchat/errors"

	"github.com/goccy/go-json"
)

const (
	TypeLogin       = "login"
	TypeMessage     = "message"
	TypeStartChat   = "startChat"
	TypeGetUserList = "getUserList"
	TypeSyncChats   = "syncChats"
	TypeLogout      = "logout"
	TypeMarkRead    = "markRead"
)

// Request is the closed set of inbound operations.
type Request interface {
	Operation() string
}

type Login struct {
	Nickname  string `json:"nickname"`
	SessionID string `json:"sessionId,omitempty"`
}

type SendMessage struct {
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
}

type StartChat struct {
	TargetUserID string `json:"targetUserId"`
}

type GetUserList struct{}

type SyncChats struct{}

type Logout struct{}

type MarkRead struct {
	ChatID string `json:"chatId"`
}

func (Login) Operation() string       { return TypeLogin }
func (SendMessage) Operation() string { return TypeMessage }
func (StartChat) Operation() string   { return TypeStartChat }
func (GetUserList) Operation() string { return TypeGetUserList }
func (SyncChats) Operation() string   { return TypeSyncChats }
func (Logout) Operation() string      { return TypeLogout }
func (MarkRead) Operation() string    { return TypeMarkRead }

type header struct {
	Type string `json:"type"`
}

// Decode parses one inbound envelope. Anything that is not a JSON object
// carrying a string type is malformed; a well formed envelope with a type
// outside the known set is an unknown operation.
func Decode(raw []byte) (Request, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	if h.Type == "" {
		return nil, fmt.Errorf("%w: missing type", errors.ErrMalformedPayload)
	}

	var req Request
	var err error
	switch h.Type {
	case TypeLogin:
		req, err = decodeAs[Login](raw)
	case TypeMessage:
		req, err = decodeAs[SendMessage](raw)
	case TypeStartChat:
		req, err = decodeAs[StartChat](raw)
	case TypeGetUserList:
		req = GetUserList{}
	case TypeSyncChats:
		req = SyncChats{}
	case TypeLogout:
		req = Logout{}
	case TypeMarkRead:
		req, err = decodeAs[MarkRead](raw)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownOperation, h.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrMalformedPayload, h.Type, err)
	}
	return req, nil
}

func decodeAs[T Request](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
