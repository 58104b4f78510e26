package websocket

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairchat/observability"
	"pairchat/runtime"
	"pairchat/services"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

type WebsocketSuite struct {
	suite.Suite
	server   *httptest.Server
	registry *runtime.Registry
	handler  *services.SessionHandler
}

func TestWebsocketSuite(t *testing.T) {
	suite.Run(t, new(WebsocketSuite))
}

func (s *WebsocketSuite) SetupTest() {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s.registry = runtime.NewRegistry(log, runtime.RegistryConfig{TombstoneTTL: time.Minute})
	store := runtime.NewConversationStore(log, runtime.StoreConfig{DedupWindow: 16})
	metrics := observability.NewMetrics(prometheus.NewRegistry(), observability.Sources{
		Sessions: func() float64 { return float64(s.registry.Len()) },
	})
	router := runtime.NewRouter(log, s.registry, metrics)
	s.handler = services.NewSessionHandler(log, s.registry, store, router, metrics, services.Config{})
	monitoring := observability.NewMonitoringManager("test", func() observability.CoreStats {
		return observability.CoreStats{Sessions: s.registry.Len()}
	})

	ws := NewServer(log, s.handler, ServerConfig{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      time.Second,
		MaxPayloadBytes:   1 << 10,
	})
	s.server = httptest.NewServer(NewRouter(log, ws, RoutesConfig{
		WSPath:  "/ws",
		Mode:    "test",
		Metrics: metrics.Handler(),
		Stats:   monitoring.GetLatest,
	}))
}

func (s *WebsocketSuite) TearDownTest() {
	s.server.Close()
}

func (s *WebsocketSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *WebsocketSuite) write(conn *websocket.Conn, payload string) {
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

// expect reads until an envelope of the wanted type shows up.
func (s *WebsocketSuite) expect(conn *websocket.Conn, envType string) map[string]any {
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		s.Require().NoError(err, "waiting for %s", envType)
		var env map[string]any
		s.Require().NoError(json.Unmarshal(data, &env))
		if env["type"] == envType {
			return env
		}
	}
}

func (s *WebsocketSuite) login(nickname string) (*websocket.Conn, string) {
	conn := s.dial()
	s.write(conn, fmt.Sprintf(`{"type":"login","nickname":%q}`, nickname))
	ok := s.expect(conn, "loginSuccess")
	return conn, ok["user"].(map[string]any)["id"].(string)
}

func (s *WebsocketSuite) TestRoundTrip_Through_Real_Sockets() {
	alice, aliceID := s.login("alice")
	bob, bobID := s.login("bob")

	joined := s.expect(alice, "userJoined")
	s.Equal(bobID, joined["user"].(map[string]any)["id"])

	s.write(alice, fmt.Sprintf(`{"type":"startChat","targetUserId":%q}`, bobID))
	chat := s.expect(alice, "chatCreated")["chat"].(map[string]any)
	s.Equal(chat["id"], s.expect(bob, "chatCreated")["chat"].(map[string]any)["id"])

	s.write(alice, fmt.Sprintf(`{"type":"message","chatId":%q,"text":"hi","messageId":"c-1"}`, chat["id"]))
	s.Equal("c-1", s.expect(alice, "messageSent")["messageId"])
	msg := s.expect(bob, "message")
	s.Equal(aliceID, msg["from"])
	s.Equal("hi", msg["text"])
}

func (s *WebsocketSuite) TestClose_Announces_User_Left() {
	alice, _ := s.login("alice")
	bob, bobID := s.login("bob")
	s.expect(alice, "userJoined")

	s.Require().NoError(bob.Close())

	left := s.expect(alice, "userLeft")
	s.Equal(bobID, left["userId"])
}

func (s *WebsocketSuite) TestLogout_Closes_Socket_With_Normal_Code() {
	conn, _ := s.login("alice")

	s.write(conn, `{"type":"logout"}`)

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		s.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
		break
	}
	s.Eventually(func() bool { return s.registry.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *WebsocketSuite) TestMalformed_Keeps_Socket_Open() {
	conn := s.dial()

	s.write(conn, `{{{`)
	s.Equal("MALFORMED_PAYLOAD", s.expect(conn, "error")["code"])

	s.write(conn, `{"type":"login","nickname":"alice"}`)
	s.expect(conn, "loginSuccess")
}

func (s *WebsocketSuite) TestOversized_Payload_Drops_Connection() {
	conn := s.dial()

	s.write(conn, fmt.Sprintf(`{"type":"login","nickname":%q}`, strings.Repeat("x", 2<<10)))

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.Error(err)
	s.Eventually(func() bool { return s.handler.Connections() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *WebsocketSuite) TestHTTP_Endpoints() {
	resp, err := http.Get(s.server.URL + "/")
	s.Require().NoError(err)
	defer resp.Body.Close()
	var h map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&h))
	s.Equal("ok", h["status"])
	s.Equal("test", h["mode"])
	ts, ok := h["timestamp"].(string)
	s.Require().True(ok, "timestamp must be a string, got %T", h["timestamp"])
	at, err := time.Parse(time.RFC3339Nano, ts)
	s.Require().NoError(err)
	s.True(strings.HasSuffix(ts, "Z"))
	s.WithinDuration(time.Now(), at, time.Minute)

	_, _ = s.login("alice")

	resp, err = http.Get(s.server.URL + "/stats")
	s.Require().NoError(err)
	defer resp.Body.Close()
	var snap observability.Snapshot
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&snap))
	s.Equal(1, snap.Core.Sessions)

	resp, err = http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "pairchat_logins_total")
	s.Contains(string(body), "pairchat_sessions 1")
}
