package protocol

import (
	"pairchat/domain"
	"pairchat/errors"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

const (
	TypeLoginSuccess   = "loginSuccess"
	TypeLoginError     = "loginError"
	TypeUserList       = "userList"
	TypeUserJoined     = "userJoined"
	TypeUserLeft       = "userLeft"
	TypeChatCreated    = "chatCreated"
	TypeChatList       = "chatList"
	TypeMessageSent    = "messageSent"
	TypeMessageError   = "messageError"
	TypeStartChatError = "startChatError"
	TypeMessagesRead   = "messagesRead"
	TypeError          = "error"
)

// Envelope is any outbound unit. The type is carried by the embedded Header.
type Envelope interface {
	EnvelopeType() string
}

type Header struct {
	Type string `json:"type"`
}

func (h Header) EnvelopeType() string { return h.Type }

// Encode serializes an envelope; field order carries no meaning.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

type UserView struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	IsOnline     bool   `json:"isOnline"`
	LastActivity int64  `json:"lastActivity"`
	Status       string `json:"status"`
}

type MessageView struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

type ChatView struct {
	ID           string        `json:"id"`
	Participants []string      `json:"participants"`
	Messages     []MessageView `json:"messages"`
	Created      int64         `json:"created"`
	LastActivity int64         `json:"lastActivity"`
	UnreadCount  int           `json:"unreadCount"`
}

func NewUserView(u domain.User) UserView {
	return UserView{
		ID:           u.ID,
		Nickname:     u.Nickname,
		IsOnline:     u.Online,
		LastActivity: u.LastActivity.UnixMilli(),
		Status:       string(u.Status),
	}
}

func NewMessageView(m domain.Message) MessageView {
	return MessageView{
		ID:        m.ID.String(),
		From:      m.From,
		Text:      m.Text,
		Type:      string(m.Type),
		Timestamp: m.Timestamp.UnixMilli(),
		Status:    string(m.Status),
	}
}

func NewChatView(c domain.ConversationView) ChatView {
	return ChatView{
		ID:           c.ID,
		Participants: c.Participants,
		Messages:     lo.Map(c.Messages, func(m domain.Message, _ int) MessageView { return NewMessageView(m) }),
		Created:      c.Created.UnixMilli(),
		LastActivity: c.LastActivity.UnixMilli(),
		UnreadCount:  c.UnreadCount,
	}
}

type LoginSuccessEnvelope struct {
	Header
	User      UserView `json:"user"`
	SessionID string   `json:"sessionId"`
}

type UserListEnvelope struct {
	Header
	Users []UserView `json:"users"`
}

type UserJoinedEnvelope struct {
	Header
	User UserView `json:"user"`
}

type UserLeftEnvelope struct {
	Header
	UserID string `json:"userId"`
}

type ChatCreatedEnvelope struct {
	Header
	Chat ChatView `json:"chat"`
}

type ChatListEnvelope struct {
	Header
	Chats []ChatView `json:"chats"`
}

type MessageEnvelope struct {
	Header
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type MessageSentEnvelope struct {
	Header
	MessageID string      `json:"messageId"`
	Message   MessageView `json:"message"`
}

type MessagesReadEnvelope struct {
	Header
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// ErrorEnvelope backs loginError, startChatError and error replies.
type ErrorEnvelope struct {
	Header
	Message string `json:"message"`
	Code    string `json:"code"`
}

type MessageErrorEnvelope struct {
	Header
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

func LoginSuccess(user UserView, sessionID string) LoginSuccessEnvelope {
	return LoginSuccessEnvelope{Header: Header{TypeLoginSuccess}, User: user, SessionID: sessionID}
}

func UserList(users []UserView) UserListEnvelope {
	if users == nil {
		users = []UserView{}
	}
	return UserListEnvelope{Header: Header{TypeUserList}, Users: users}
}

func UserJoined(user UserView) UserJoinedEnvelope {
	return UserJoinedEnvelope{Header: Header{TypeUserJoined}, User: user}
}

func UserLeft(userID string) UserLeftEnvelope {
	return UserLeftEnvelope{Header: Header{TypeUserLeft}, UserID: userID}
}

func ChatCreated(chat ChatView) ChatCreatedEnvelope {
	return ChatCreatedEnvelope{Header: Header{TypeChatCreated}, Chat: chat}
}

func ChatList(chats []ChatView) ChatListEnvelope {
	if chats == nil {
		chats = []ChatView{}
	}
	return ChatListEnvelope{Header: Header{TypeChatList}, Chats: chats}
}

func Message(chatID string, m domain.Message) MessageEnvelope {
	return MessageEnvelope{
		Header:    Header{TypeMessage},
		ChatID:    chatID,
		MessageID: m.ID.String(),
		From:      m.From,
		Text:      m.Text,
		Timestamp: m.Timestamp.UnixMilli(),
	}
}

// MessageSent echoes the client request id so the sender can match its
// optimistic local copy.
func MessageSent(clientID string, m domain.Message) MessageSentEnvelope {
	return MessageSentEnvelope{Header: Header{TypeMessageSent}, MessageID: clientID, Message: NewMessageView(m)}
}

func MessagesRead(chatID, userID string) MessagesReadEnvelope {
	return MessagesReadEnvelope{Header: Header{TypeMessagesRead}, ChatID: chatID, UserID: userID}
}

func LoginError(err error) ErrorEnvelope {
	return newErrorEnvelope(TypeLoginError, err)
}

func StartChatError(err error) ErrorEnvelope {
	return newErrorEnvelope(TypeStartChatError, err)
}

func Error(err error) ErrorEnvelope {
	return newErrorEnvelope(TypeError, err)
}

func MessageError(clientID string, err error) MessageErrorEnvelope {
	return MessageErrorEnvelope{
		Header:    Header{TypeMessageError},
		MessageID: clientID,
		Message:   errors.Message(err),
		Code:      errors.Code(err),
	}
}

func newErrorEnvelope(kind string, err error) ErrorEnvelope {
	return ErrorEnvelope{Header: Header{kind}, Message: errors.Message(err), Code: errors.Code(err)}
}
