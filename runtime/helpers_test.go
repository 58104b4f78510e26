package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mama165/sdk-go/logs"
)

// recordingConn keeps every frame written to it.
type recordingConn struct {
	mu      sync.Mutex
	frames  [][]byte
	pings   int
	closed  bool
	code    int
	reason  string
	sendErr error
}

func (c *recordingConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *recordingConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed, c.code, c.reason = true, code, reason
	return nil
}

func (c *recordingConn) RemoteAddr() string { return "127.0.0.1:0" }

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var h struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(f, &h); err != nil {
			panic(fmt.Sprintf("non json frame %q", f))
		}
		out = append(out, h.Type)
	}
	return out
}

func (c *recordingConn) isClosed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}
