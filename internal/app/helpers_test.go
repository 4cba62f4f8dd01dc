package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

var errFull = errors.New("send buffer full")

// fakeConn records every frame the lobby hands it.
type fakeConn struct {
	mu     sync.Mutex
	frames []map[string]any
	closed bool
	fail   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.fail {
		return errFull
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) setFail(v bool) {
	c.mu.Lock()
	c.fail = v
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) ofType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() core.SessionID {
	n := 0
	return func() core.SessionID {
		n++
		return core.SessionID(fmt.Sprintf("s%d", n))
	}
}

type components struct {
	reg      *Registry
	presence *Presence
	router   *Router
}

func newComponents() *components {
	reg := NewRegistry(0, sequentialIDs())
	presence := NewPresence(0)
	return &components{reg: reg, presence: presence, router: NewRouter(reg, presence)}
}

func (c *components) member(t *testing.T, name string, role domain.Role) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s, err := c.reg.Register(conn, ConnInfo{RemoteAddr: "127.0.0.1"})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	dn, err := c.presence.Claim(s.ID, name)
	if err != nil {
		t.Fatalf("claim %s: %v", name, err)
	}
	if _, ok := c.reg.Finalize(s.ID, dn, role, time.Now()); !ok {
		t.Fatalf("finalize %s", name)
	}
	return s, conn
}
