package broadcast

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge"
)

type fakeStates struct {
	mu sync.Mutex
	m  map[string]bot.ConnectionState
}

func (f *fakeStates) State(id string) (bot.ConnectionState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.m[id]
	return st, ok
}

type fakeExec struct {
	mu   sync.Mutex
	reqs []actions.Request
}

func (f *fakeExec) Dispatch(ctx context.Context, req actions.Request) actions.Outcome {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return actions.Outcome{ConnectionID: req.ConnectionID, ActionType: req.Type, Status: actions.StatusSuccess, Message: "Jumped"}
}

func spawnedState(id string) bot.ConnectionState {
	h := 20.0
	return bot.ConnectionState{
		ConnectionID: id,
		DisplayName:  "Bot_A",
		Status:       bot.StatusSpawned,
		Position:     &bridge.Vec3{X: 1, Y: 64, Z: 1},
		Health:       &h,
		Inventory:    []bridge.Item{},
	}
}

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("bad json %s: %v", b, err)
	}
	return m
}

func recv(t *testing.T, out <-chan []byte) map[string]any {
	t.Helper()
	select {
	case b, ok := <-out:
		if !ok {
			t.Fatalf("queue closed")
		}
		return decode(t, b)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for message")
	}
	return nil
}

func expectEmpty(t *testing.T, out <-chan []byte) {
	t.Helper()
	select {
	case b := <-out:
		t.Fatalf("unexpected message %s", b)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestHub_SubscribePushesSnapshotImmediately(t *testing.T) {
	states := &fakeStates{m: map[string]bot.ConnectionState{"x": spawnedState("x")}}
	h := NewHub(states, nil, nil, Options{})
	defer h.Close()

	id, out := h.Attach()
	h.Subscribe(id, []string{"x", "unknown"})

	m := recv(t, out)
	if m["type"] != "bot-state-update" {
		t.Fatalf("type = %v", m["type"])
	}
	st := m["state"].(map[string]any)
	if st["botId"] != "x" || st["status"] != "spawned" {
		t.Fatalf("state = %v", st)
	}
	// No snapshot exists for an unknown id.
	expectEmpty(t, out)
}

func TestHub_FanOutOnlyToSubscribers(t *testing.T) {
	h := NewHub(nil, nil, nil, Options{})
	defer h.Close()

	a, outA := h.Attach()
	b, outB := h.Attach()
	h.Subscribe(a, []string{"x"})
	h.Subscribe(b, []string{"y"})

	h.StateChanged(spawnedState("x"))
	h.ActionOutcome(actions.Jump("x"), actions.Outcome{ConnectionID: "x", ActionType: actions.TypeJump, Status: actions.StatusSuccess})
	h.ConnectionEvent(bot.Event{ConnectionID: "x", Kind: bot.EventChat, Data: map[string]any{"message": "hi"}, At: time.Now()})
	h.BehaviorEvent(behavior.ActionEvent{ConnectionID: "x", AgentID: "ag", Behavior: "help-build", Success: true, Timestamp: time.Now()})

	for _, want := range []string{"bot-state-update", "action-result", "bot-event", "bot-event"} {
		if m := recv(t, outA); m["type"] != want {
			t.Fatalf("type = %v, want %s", m["type"], want)
		}
	}
	expectEmpty(t, outB)

	h.BroadcastAll("maintenance")
	for _, out := range []<-chan []byte{outA, outB} {
		m := recv(t, out)
		if m["type"] != "system" || m["message"] != "maintenance" {
			t.Fatalf("system msg = %v", m)
		}
	}

	h.Unsubscribe(a, []string{"x"})
	h.StateChanged(spawnedState("x"))
	expectEmpty(t, outA)
}

func TestHub_FullQueueDropsOnlyForThatListener(t *testing.T) {
	drops := 0
	h := NewHub(nil, nil, nil, Options{QueueSize: 2, OnDrop: func() { drops++ }})
	defer h.Close()

	slow, _ := h.Attach()
	fast, fastOut := h.Attach()
	h.Subscribe(slow, []string{"x"})
	h.Subscribe(fast, []string{"x"})

	for i := 0; i < 5; i++ {
		h.StateChanged(spawnedState("x"))
		recv(t, fastOut)
	}
	if h.Dropped() != 3 || drops != 3 {
		t.Fatalf("dropped = %d hook=%d, want 3", h.Dropped(), drops)
	}
}

func TestHub_DetachAndRemoval(t *testing.T) {
	counts := []int{}
	h := NewHub(nil, nil, nil, Options{OnListeners: func(n int) { counts = append(counts, n) }})
	defer h.Close()

	a, out := h.Attach()
	h.Subscribe(a, []string{"x", "y"})
	h.ConnectionRemoved("x")
	if m := recv(t, out); m["event"] != "removed" || m["botId"] != "x" {
		t.Fatalf("removed event = %v", m)
	}
	if subs := h.Subscriptions(a); len(subs) != 1 || subs[0] != "y" {
		t.Fatalf("subs = %v", subs)
	}

	h.Detach(a)
	h.Detach(a)
	if _, ok := <-out; ok {
		t.Fatalf("queue not closed on detach")
	}
	// Publishing after detach must not panic.
	h.BroadcastAll("after")
	if h.ListenerCount() != 0 {
		t.Fatalf("listeners = %d", h.ListenerCount())
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Fatalf("listener gauge updates = %v", counts)
	}
}

func TestHub_HandleErrors(t *testing.T) {
	h := NewHub(nil, &fakeExec{}, nil, Options{})
	defer h.Close()
	id, out := h.Attach()

	cases := []struct {
		in   string
		code string
	}{
		{`{not json`, "E_BAD_REQUEST"},
		{`{"type":"dance"}`, "E_UNKNOWN_TYPE"},
		{`{"type":"subscribe"}`, "E_BAD_REQUEST"},
		{`{"type":"execute-action","action":{"type":"dig","botId":"x"}}`, "E_BAD_REQUEST"},
	}
	for _, tc := range cases {
		h.Handle(id, []byte(tc.in))
		m := recv(t, out)
		if m["type"] != "error" || m["code"] != tc.code {
			t.Fatalf("%s: reply = %v, want %s", tc.in, m, tc.code)
		}
	}

	h.Handle(id, []byte(`{"type":"ping"}`))
	if m := recv(t, out); m["type"] != "pong" {
		t.Fatalf("ping reply = %v", m)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
}

func readWS(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return decode(t, b)
}

func TestWSHandler_SubscribeAndExecute(t *testing.T) {
	states := &fakeStates{m: map[string]bot.ConnectionState{"x": spawnedState("x")}}
	exec := &fakeExec{}
	h := NewHub(states, exec, nil, Options{})
	defer h.Close()
	srv := httptest.NewServer(h.WSHandler())
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	// Unsubscribed requester gets its result directly.
	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"execute-action","action":{"type":"jump","botId":"x"}}`)); err != nil {
		t.Fatal(err)
	}
	m := readWS(t, c)
	if m["type"] != "action-result" || m["result"].(map[string]any)["status"] != "success" {
		t.Fatalf("reply = %v", m)
	}

	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","botIds":["x"]}`)); err != nil {
		t.Fatal(err)
	}
	if m := readWS(t, c); m["type"] != "bot-state-update" {
		t.Fatalf("reply = %v", m)
	}
	if h.ListenerCount() != 1 {
		t.Fatalf("listeners = %d", h.ListenerCount())
	}
}

func TestWSHandler_DeadListenerDoesNotBlockOthers(t *testing.T) {
	h := NewHub(nil, nil, nil, Options{})
	defer h.Close()
	srv := httptest.NewServer(h.WSHandler())
	defer srv.Close()

	dial := func() *websocket.Conn {
		c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","botIds":["x"]}`)); err != nil {
			t.Fatal(err)
		}
		return c
	}
	dead := dial()
	live := dial()
	defer live.Close()

	deadline := time.Now().Add(2 * time.Second)
	for (h.ListenerCount() != 2 || len(h.snapshotSubs("x")) != 2) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = dead.Close()

	h.StateChanged(spawnedState("x"))
	if m := readWS(t, live); m["type"] != "bot-state-update" {
		t.Fatalf("live listener got %v", m)
	}

	for h.ListenerCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ListenerCount() != 1 {
		t.Fatalf("dead listener not reaped: %d", h.ListenerCount())
	}
}

// snapshotSubs lists listeners subscribed to id.
func (h *Hub) snapshotSubs(id string) []string {
	h.mu.RLock()
	ls := h.snapshotLocked()
	h.mu.RUnlock()
	var out []string
	for _, l := range ls {
		if l.subscribed(id) {
			out = append(out, l.id)
		}
	}
	return out
}

func TestWSHandler_IdleSubscriberKeptAlive(t *testing.T) {
	states := &fakeStates{m: map[string]bot.ConnectionState{"x": spawnedState("x")}}
	h := NewHub(states, nil, nil, Options{PongWait: 200 * time.Millisecond, PingPeriod: 50 * time.Millisecond})
	defer h.Close()
	srv := httptest.NewServer(h.WSHandler())
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	var pings atomic.Int32
	c.SetPingHandler(func(data string) error {
		pings.Add(1)
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","botIds":["x"]}`)); err != nil {
		t.Fatal(err)
	}

	msgs := make(chan map[string]any, 16)
	go func() {
		defer close(msgs)
		for {
			_, b, err := c.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(b, &m) == nil {
				msgs <- m
			}
		}
	}()

	// Several read deadlines pass without the client sending a message.
	time.Sleep(700 * time.Millisecond)
	if n := h.ListenerCount(); n != 1 {
		t.Fatalf("listeners = %d, idle subscriber dropped", n)
	}
	if pings.Load() == 0 {
		t.Fatalf("server never pinged")
	}

drain:
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				t.Fatalf("connection closed while idle")
			}
		default:
			break drain
		}
	}
	h.StateChanged(spawnedState("x"))
	select {
	case m, ok := <-msgs:
		if !ok || m["type"] != "bot-state-update" {
			t.Fatalf("got %v (open=%v)", m, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no state push after idling")
	}
}
