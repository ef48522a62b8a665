package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agentarena.ai/internal/bridge"
	"agentarena.ai/internal/bridge/bridgetest"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Kind == EventStatusChange {
			out = append(out, ev.Data["status"].(string))
		}
	}
	return out
}

func testConfig() Config {
	return Config{ConnectionID: "c1", DisplayName: "Bot_A", Host: "localhost", Port: 25565, Version: "1.21.1", Auth: "offline"}
}

func TestConnection_StateBeforeConnect(t *testing.T) {
	c := NewConnection(testConfig(), &bridgetest.Dialer{}, nil, nil)
	st := c.State()
	if st.Status != StatusDisconnected {
		t.Fatalf("status = %s", st.Status)
	}
	if st.Position != nil || st.Orientation != nil || st.Health != nil || st.Food != nil || st.GameMode != nil {
		t.Fatalf("unspawned state carries world fields: %+v", st)
	}
	if st.Inventory == nil {
		t.Fatalf("inventory must be non-nil")
	}
}

func TestConnection_ConnectTransitionsAndState(t *testing.T) {
	log := &eventLog{}
	d := &bridgetest.Dialer{Setup: func(s *bridgetest.Session) {
		s.SetPosition(bridge.Vec3{X: 1, Y: 64, Z: 2})
		s.SetInventory(bridge.Item{Slot: 36, Name: "dirt", Count: 3})
	}}
	c := NewConnection(testConfig(), d, log.add, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	got := log.statuses()
	want := []string{"connecting", "connected", "spawned"}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}

	st := c.State()
	if st.Status != StatusSpawned || st.Position == nil || *st.Position != (bridge.Vec3{X: 1, Y: 64, Z: 2}) {
		t.Fatalf("state = %+v", st)
	}
	if st.Health == nil || *st.Health != 20 || st.GameMode == nil || *st.GameMode != "survival" {
		t.Fatalf("vitality/game mode = %+v", st)
	}
	if len(st.Inventory) != 1 || st.Inventory[0].Name != "dirt" {
		t.Fatalf("inventory = %+v", st.Inventory)
	}
}

func TestConnection_ListenersAttachOnce(t *testing.T) {
	log := &eventLog{}
	d := &bridgetest.Dialer{}
	c := NewConnection(testConfig(), d, log.add, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := d.Sessions()[0]
	// Respawn after death re-fires spawn.
	s.Emit(bridge.Event{Kind: bridge.EventDeath})
	s.Emit(bridge.Event{Kind: bridge.EventSpawn})
	s.Emit(bridge.Event{Kind: bridge.EventChat, Username: "Steve", Message: "hi"})

	deadline := time.Now().Add(time.Second)
	for log.count(EventChat) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := log.count(EventChat); n != 1 {
		t.Fatalf("chat forwarded %d times", n)
	}
	if n := log.count(EventSpawn); n != 1 {
		t.Fatalf("spawn forwarded %d times", n)
	}
	if n := log.count(EventDeath); n != 1 {
		t.Fatalf("death forwarded %d times", n)
	}
}

func TestConnection_DisconnectIdempotent(t *testing.T) {
	log := &eventLog{}
	d := &bridgetest.Dialer{}
	c := NewConnection(testConfig(), d, log.add, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Disconnect()
	c.Disconnect()

	if c.Status() != StatusDisconnected {
		t.Fatalf("status = %s", c.Status())
	}
	if !d.Sessions()[0].Closed() {
		t.Fatalf("session not quit")
	}
	n := 0
	for _, s := range log.statuses() {
		if s == "disconnected" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("disconnected emitted %d times", n)
	}
	if c.Session() != nil {
		t.Fatalf("session retained after disconnect")
	}
}

func TestConnection_DialError(t *testing.T) {
	cause := errors.New("no route")
	c := NewConnection(testConfig(), &bridgetest.Dialer{Err: cause}, nil, nil)
	if err := c.Connect(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
	if c.Status() != StatusError {
		t.Fatalf("status = %s, want error", c.Status())
	}
}

func TestConnection_ErrorBeforeSpawn(t *testing.T) {
	d := &bridgetest.Dialer{Script: func(s *bridgetest.Session) {
		s.Emit(bridge.Event{Kind: bridge.EventError, Err: errors.New("outdated client")})
	}}
	c := NewConnection(testConfig(), d, nil, nil)
	err := c.Connect(context.Background())
	if err == nil || err.Error() != "outdated client" {
		t.Fatalf("err = %v", err)
	}
	if c.Status() != StatusError {
		t.Fatalf("status = %s", c.Status())
	}
}

func TestConnection_ConnectTimeout(t *testing.T) {
	d := &bridgetest.Dialer{Script: func(s *bridgetest.Session) {
		s.Emit(bridge.Event{Kind: bridge.EventLogin})
	}}
	c := NewConnection(testConfig(), d, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if !d.Sessions()[0].Closed() {
		t.Fatalf("session left open after timeout")
	}
}

func TestConnection_StreamClosedWithoutEnd(t *testing.T) {
	log := &eventLog{}
	d := &bridgetest.Dialer{}
	c := NewConnection(testConfig(), d, log.add, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	d.Sessions()[0].Vanish()

	deadline := time.Now().Add(time.Second)
	for c.Status() != StatusDisconnected && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if st := c.Status(); st != StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", st)
	}
	if n := log.count(EventKicked); n != 1 {
		t.Fatalf("kicked forwarded %d times", n)
	}
	if c.Session() != nil {
		t.Fatalf("session still attached")
	}
}
