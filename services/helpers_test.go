package services

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pairchat/contract"
	"pairchat/runtime"

	"github.com/goccy/go-json"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// fakeConn records every envelope written to it, decoded as a generic map.
type fakeConn struct {
	mu     sync.Mutex
	name   string
	frames []map[string]any
	pings  int
	closed bool
	code   int
	reason string
}

func (c *fakeConn) Send(data []byte) error {
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("non json frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%s: use of closed connection", c.name)
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed, c.code, c.reason = true, code, reason
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.name }

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f["type"].(string))
	}
	return out
}

// last returns the most recent envelope of the given type, or nil.
func (c *fakeConn) last(envType string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i]["type"] == envType {
			return c.frames[i]
		}
	}
	return nil
}

func (c *fakeConn) count(envType string) int {
	n := 0
	for _, t := range c.types() {
		if t == envType {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeConn) closeInfo() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

type fixture struct {
	registry *runtime.Registry
	store    *runtime.ConversationStore
	router   *runtime.Router
	handler  *SessionHandler
}

func newFixture(t *testing.T, storeConf runtime.StoreConfig, conf Config) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry(log, runtime.RegistryConfig{TombstoneTTL: time.Minute})
	store := runtime.NewConversationStore(log, storeConf)
	router := runtime.NewRouter(log, registry, nil)
	return &fixture{
		registry: registry,
		store:    store,
		router:   router,
		handler:  NewSessionHandler(log, registry, store, router, nil, conf),
	}
}

func (f *fixture) connect(name string) *fakeConn {
	conn := &fakeConn{name: name}
	f.handler.Accept(conn)
	return conn
}

func (f *fixture) send(conn contract.Connection, payload string) {
	f.handler.Receive(conn, []byte(payload))
}

// login connects a client and returns its connection and user id.
func (f *fixture) login(t *testing.T, nickname, token string) (*fakeConn, string) {
	t.Helper()
	conn := f.connect(nickname)
	if token == "" {
		f.send(conn, fmt.Sprintf(`{"type":"login","nickname":%q}`, nickname))
	} else {
		f.send(conn, fmt.Sprintf(`{"type":"login","nickname":%q,"sessionId":%q}`, nickname, token))
	}
	ok := conn.last("loginSuccess")
	require.NotNil(t, ok, "login of %s failed: %v", nickname, conn.types())
	return conn, userOf(ok)["id"].(string)
}

func userOf(env map[string]any) map[string]any {
	return env["user"].(map[string]any)
}

func chatOf(env map[string]any) map[string]any {
	return env["chat"].(map[string]any)
}
