package websocket

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"pairchat/contract"

	"github.com/gorilla/websocket"
)

// Engine is what the transport drives: one call per socket event.
type Engine interface {
	Accept(conn contract.Connection)
	Receive(conn contract.Connection, raw []byte)
	Disconnect(conn contract.Connection)
	Pong(conn contract.Connection)
}

type ServerConfig struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	MaxPayloadBytes   int64
}

type Server struct {
	log      *slog.Logger
	engine   Engine
	conf     ServerConfig
	upgrader websocket.Upgrader
}

func NewServer(log *slog.Logger, engine Engine, conf ServerConfig) *Server {
	return &Server{
		log:    log,
		engine: engine,
		conf:   conf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// readWindow bounds how long a socket may stay silent, pongs included.
// It is longer than the two heartbeat ticks the liveness monitor needs, so
// eviction normally comes from the monitor.
func (s *Server) readWindow() time.Duration {
	return 3 * s.conf.HeartbeatInterval
}

// ServeHTTP upgrades the request and runs the read loop until the socket
// goes away. Reads are sequential, so the engine sees one event at a time
// per connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := NewConn(ws, s.conf.WriteTimeout)
	defer func() {
		s.engine.Disconnect(conn)
		_ = ws.Close()
	}()

	if s.conf.MaxPayloadBytes > 0 {
		ws.SetReadLimit(s.conf.MaxPayloadBytes)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.readWindow()))
	ws.SetPongHandler(func(string) error {
		s.engine.Pong(conn)
		return ws.SetReadDeadline(time.Now().Add(s.readWindow()))
	})

	s.engine.Accept(conn)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.logReadError(conn, err)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.readWindow()))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.engine.Receive(conn, data)
	}
}

func (s *Server) logReadError(conn *Conn, err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		s.log.Debug("Peer closed", "remote", conn.RemoteAddr(), "error", err)
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Info("Read timeout", "remote", conn.RemoteAddr(), "error", err)
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("Payload too large", "remote", conn.RemoteAddr(), "limit", s.conf.MaxPayloadBytes)
	default:
		s.log.Debug("Read error", "remote", conn.RemoteAddr(), "error", err)
	}
}
