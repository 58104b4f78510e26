package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrInvalidNickname = fmt.Errorf("nickname must be 2 to 20 letters, digits, '_' or '-'")
	ErrInvalidMessage  = fmt.Errorf("message text must be 1 to 1000 characters")

	ErrNicknameTaken = fmt.Errorf("nickname already taken")

	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrTargetNotFound       = fmt.Errorf("target user not found")

	ErrNotAParticipant      = fmt.Errorf("sender is not a participant of the conversation")
	ErrNotAuthenticated     = fmt.Errorf("login required")
	ErrAlreadyAuthenticated = fmt.Errorf("connection is already logged in")
	ErrSelfConversation     = fmt.Errorf("cannot start a conversation with yourself")

	ErrMalformedPayload = fmt.Errorf("malformed payload")
	ErrUnknownOperation = fmt.Errorf("unknown operation")
	ErrRateLimited      = fmt.Errorf("too many requests")

	ErrHeartbeatTimeout = fmt.Errorf("heartbeat timeout")
	ErrLinkClosed       = fmt.Errorf("link closed")
	ErrInternal         = fmt.Errorf("internal server error")
)

// Kind groups errors by who can act on them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindProtocol      Kind = "protocol"
	KindLiveness      Kind = "liveness"
	KindInternal      Kind = "internal"
)

type classified struct {
	err  error
	kind Kind
	code string
}

var taxonomy = []classified{
	{ErrInvalidNickname, KindValidation, "INVALID_NICKNAME"},
	{ErrInvalidMessage, KindValidation, "INVALID_MESSAGE"},
	{ErrSelfConversation, KindValidation, "SELF_CONVERSATION"},
	{ErrNicknameTaken, KindConflict, "NICKNAME_TAKEN"},
	{ErrConversationNotFound, KindNotFound, "CONVERSATION_NOT_FOUND"},
	{ErrTargetNotFound, KindNotFound, "TARGET_NOT_FOUND"},
	{ErrNotAParticipant, KindAuthorization, "NOT_A_PARTICIPANT"},
	{ErrNotAuthenticated, KindAuthorization, "NOT_AUTHENTICATED"},
	{ErrAlreadyAuthenticated, KindAuthorization, "ALREADY_AUTHENTICATED"},
	{ErrMalformedPayload, KindProtocol, "MALFORMED_PAYLOAD"},
	{ErrUnknownOperation, KindProtocol, "UNKNOWN_OPERATION"},
	{ErrRateLimited, KindProtocol, "RATE_LIMITED"},
	{ErrHeartbeatTimeout, KindLiveness, "HEARTBEAT_TIMEOUT"},
}

func lookup(err error) (classified, bool) {
	for _, c := range taxonomy {
		if stderrors.Is(err, c.err) {
			return c, true
		}
	}
	return classified{}, false
}

// KindOf returns KindInternal for anything outside the taxonomy.
func KindOf(err error) Kind {
	if c, ok := lookup(err); ok {
		return c.kind
	}
	return KindInternal
}

// Code maps an error to the code carried by error envelopes.
func Code(err error) string {
	if c, ok := lookup(err); ok {
		return c.code
	}
	return "INTERNAL"
}

// Message is the text shown to the client. Unclassified errors never leak
// their details.
func Message(err error) string {
	if c, ok := lookup(err); ok {
		return c.err.Error()
	}
	return ErrInternal.Error()
}
