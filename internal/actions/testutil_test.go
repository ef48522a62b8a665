package actions

import (
	"context"
	"testing"
	"time"

	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge/bridgetest"
)

type fixture struct {
	mgr     *bot.Manager
	dialer  *bridgetest.Dialer
	reg     *Registry
	limiter *RateLimiter
	disp    *Dispatcher
}

func newFixture(t *testing.T, perSecond int) *fixture {
	t.Helper()
	d := &bridgetest.Dialer{}
	mgr := bot.NewManager(bot.ManagerConfig{MaxConnections: 3, ConnectTimeout: time.Second}, d, nil)
	t.Cleanup(func() { _ = mgr.Close() })
	reg := NewRegistry()
	RegisterDefaults(reg, Options{MoveTimeout: 100 * time.Millisecond, JumpHold: time.Millisecond})
	lim := NewRateLimiter(perSecond)
	return &fixture{mgr: mgr, dialer: d, reg: reg, limiter: lim, disp: NewDispatcher(mgr, reg, lim, nil)}
}

func (f *fixture) spawn(t *testing.T, name string) (string, *bridgetest.Session) {
	t.Helper()
	st, err := f.mgr.Create(context.Background(), bot.CreateParams{DisplayName: name})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	s, err := f.dialer.ByName(name)
	if err != nil {
		t.Fatal(err)
	}
	return st.ConnectionID, s
}

// connMap serves connections that never went through a Manager.
type connMap map[string]*bot.Connection

func (m connMap) Get(id string) (*bot.Connection, bool) {
	c, ok := m[id]
	return c, ok
}
