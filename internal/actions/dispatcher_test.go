package actions

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge"
	"agentarena.ai/internal/bridge/bridgetest"
)

func TestDispatch_JumpEndToEnd(t *testing.T) {
	f := newFixture(t, 5)
	id, s := f.spawn(t, "Bot_A")

	out := f.disp.Dispatch(context.Background(), Jump(id))
	if out.Status != StatusSuccess || out.Message != "Jumped" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.ConnectionID != id || out.ActionType != TypeJump || out.DurationMs < 0 {
		t.Fatalf("outcome = %+v", out)
	}
	ts, err := time.Parse(time.RFC3339Nano, out.CompletedAt)
	if err != nil {
		t.Fatalf("completedAt %q: %v", out.CompletedAt, err)
	}
	if FormatTimestamp(ts) != out.CompletedAt {
		t.Fatalf("completedAt %q does not round-trip", out.CompletedAt)
	}
	calls := s.CallsTo("SetControlState")
	if len(calls) != 2 || calls[0].Args[1] != true || calls[1].Args[1] != false {
		t.Fatalf("control calls = %+v", calls)
	}
}

func TestDispatch_UnknownConnection(t *testing.T) {
	f := newFixture(t, 5)
	out := f.disp.Dispatch(context.Background(), Jump("nope"))
	if out.Status != StatusFailure || !strings.Contains(out.Message, "not found") {
		t.Fatalf("outcome = %+v", out)
	}
	for i := 0; i < 50; i++ {
		f.disp.Dispatch(context.Background(), Jump("ghost-"+strconv.Itoa(i)))
	}
	if n := f.limiter.Len(); n != 0 {
		t.Fatalf("buckets kept for unknown connections: %d", n)
	}
}

func TestDispatch_RegisteredCustomKind(t *testing.T) {
	f := newFixture(t, 5)
	id, _ := f.spawn(t, "Bot_A")
	f.reg.Register("wave", HandlerFunc(func(ctx context.Context, sess bridge.Session, req Request) (string, error) {
		return "Waved", nil
	}))
	out := f.disp.Dispatch(context.Background(), Request{Type: "wave", ConnectionID: id})
	if out.Status != StatusSuccess || out.Message != "Waved" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_NotSpawned(t *testing.T) {
	for _, script := range []func(*bridgetest.Session){
		nil, // never connected
		func(s *bridgetest.Session) { s.Emit(bridge.Event{Kind: bridge.EventLogin}) },
	} {
		d := &bridgetest.Dialer{Script: script}
		c := bot.NewConnection(bot.Config{ConnectionID: "c1", DisplayName: "Bot_A"}, d, nil, nil)
		if script != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			_ = c.Connect(ctx)
			cancel()
		}
		reg := NewRegistry()
		RegisterDefaults(reg, Options{})
		disp := NewDispatcher(connMap{"c1": c}, reg, NewRateLimiter(5), nil)
		out := disp.Dispatch(context.Background(), Jump("c1"))
		if out.Status != StatusFailure || !strings.Contains(out.Message, "not spawned") {
			t.Fatalf("outcome = %+v", out)
		}
	}
}

func TestDispatch_NoHandler(t *testing.T) {
	f := newFixture(t, 5)
	id, _ := f.spawn(t, "Bot_A")
	disp := NewDispatcher(f.mgr, NewRegistry(), NewRateLimiter(5), nil)
	out := disp.Dispatch(context.Background(), Jump(id))
	if out.Status != StatusFailure || !strings.Contains(out.Message, `No handler registered for action type "jump"`) {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_RateLimitRunsFirst(t *testing.T) {
	f := newFixture(t, 1)
	f.limiter.Allow("ghost")
	out := f.disp.Dispatch(context.Background(), Jump("ghost"))
	if !strings.Contains(out.Message, "Rate limit exceeded") {
		t.Fatalf("outcome = %+v, want rate limit before existence check", out)
	}
}

func TestDispatch_RateLimitRefill(t *testing.T) {
	const n = 5
	f := newFixture(t, n)
	id, _ := f.spawn(t, "Bot_A")

	now := time.Unix(1700000000, 0)
	f.limiter.now = func() time.Time { return now }

	for i := 0; i < n; i++ {
		if out := f.disp.Dispatch(context.Background(), UseItem(id)); !out.OK() {
			t.Fatalf("dispatch %d: %+v", i, out)
		}
	}
	out := f.disp.Dispatch(context.Background(), UseItem(id))
	if out.Status != StatusFailure || !strings.Contains(out.Message, "Rate limit") {
		t.Fatalf("drained bucket outcome = %+v", out)
	}

	now = now.Add(time.Second / n)
	if out := f.disp.Dispatch(context.Background(), UseItem(id)); !out.OK() {
		t.Fatalf("after refill: %+v", out)
	}
	if out := f.disp.Dispatch(context.Background(), UseItem(id)); out.OK() {
		t.Fatalf("second dispatch after a single refill succeeded: %+v", out)
	}
}

func TestDispatch_HandlerErrorAndPanic(t *testing.T) {
	f := newFixture(t, 10)
	id, s := f.spawn(t, "Bot_A")

	s.FailOn("ActivateItem", errors.New("hand is empty"))
	out := f.disp.Dispatch(context.Background(), UseItem(id))
	if out.Status != StatusFailure || out.Message != "hand is empty" {
		t.Fatalf("outcome = %+v", out)
	}

	s.PanicOn("Chat")
	out = f.disp.Dispatch(context.Background(), SendChat(id, "hi"))
	if out.Status != StatusFailure || !strings.Contains(out.Message, "Chat exploded") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_InvalidFields(t *testing.T) {
	f := newFixture(t, 10)
	id, _ := f.spawn(t, "Bot_A")
	out := f.disp.Dispatch(context.Background(), Request{Type: TypeDig, ConnectionID: id})
	if out.Status != StatusFailure || !strings.HasPrefix(out.Message, "Invalid action: ") {
		t.Fatalf("outcome = %+v", out)
	}
	out = f.disp.Dispatch(context.Background(), SendChat(id, strings.Repeat("x", MaxChatLength+1)))
	if !strings.HasPrefix(out.Message, "Invalid action: ") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_OutcomeHooks(t *testing.T) {
	f := newFixture(t, 10)
	id, _ := f.spawn(t, "Bot_A")
	var mu sync.Mutex
	var seen []Outcome
	f.disp.OnOutcome(func(_ Request, o Outcome) {
		mu.Lock()
		seen = append(seen, o)
		mu.Unlock()
	})
	f.disp.Dispatch(context.Background(), Jump(id))
	f.disp.Dispatch(context.Background(), Jump("missing"))
	if len(seen) != 2 || !seen[0].OK() || seen[1].OK() {
		t.Fatalf("hook saw %+v", seen)
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	f := newFixture(t, 10)
	id, s := f.spawn(t, "Bot_A")
	s.MoveDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.disp.Dispatch(ctx, MoveTo(id, bridge.Vec3{X: 1, Y: 2, Z: 3}))
	if out.Status != StatusCancelled {
		t.Fatalf("outcome = %+v", out)
	}
}
