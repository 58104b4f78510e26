package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessage_Advance_Is_Monotonic(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("alice", "hi", "c-1", time.Now())
	req.Equal(MessageSent, msg.Status)
	req.Equal(TypeMessage, msg.Type)

	req.True(msg.Advance(MessageDelivered))
	req.False(msg.Advance(MessageDelivered))
	req.False(msg.Advance(MessageSent))
	req.True(msg.Advance(MessageRead))
	req.False(msg.Advance(MessageDelivered))
	req.False(msg.Advance(MessageFailed))
	req.Equal(MessageRead, msg.Status)
}

func TestMessage_Failed_Is_Terminal(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("alice", "hi", "", time.Now())

	req.True(msg.Advance(MessageFailed))
	req.False(msg.Advance(MessageDelivered))
	req.False(msg.Advance(MessageRead))
	req.Equal(MessageFailed, msg.Status)
}

func TestNewMessage_System_Sender(t *testing.T) {
	msg := NewMessage(SystemSender, "welcome", "", time.Now())
	require.Equal(t, TypeSystem, msg.Type)
}
