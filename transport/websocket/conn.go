// Package websocket adapts gorilla/websocket connections to the session
// engine and exposes the HTTP surface of the server.
package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the contract.Connection of one websocket. Every write carries a
// deadline so a stuck peer never blocks the core.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) Send(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close sends a close frame then drops the socket; the read loop notices
// and reports the disconnect.
func (c *Conn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	if err := c.ws.Close(); err != nil {
		return err
	}
	if werr == websocket.ErrCloseSent {
		return nil
	}
	return werr
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
