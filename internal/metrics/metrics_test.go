package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
)

type fixedStates []bot.ConnectionState

func (f fixedStates) States() []bot.ConnectionState { return f }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func mustContain(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if !strings.Contains(body, l) {
			t.Fatalf("missing %q in:\n%s", l, body)
		}
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.TrackConnections(fixedStates{
		{ConnectionID: "a", Status: bot.StatusSpawned},
		{ConnectionID: "b", Status: bot.StatusSpawned},
		{ConnectionID: "c", Status: bot.StatusDisconnected},
	})

	m.ActionOutcome(actions.Request{Type: actions.TypeJump}, actions.Outcome{ActionType: actions.TypeJump, Status: actions.StatusSuccess, DurationMs: 200})
	m.ActionOutcome(actions.Request{Type: actions.TypeJump}, actions.Outcome{ActionType: actions.TypeJump, Status: actions.StatusFailure})
	m.SetListeners(4)
	m.BroadcastDropped()
	m.BroadcastDropped()
	m.BehaviorTick("miner", behavior.TickExecuted)

	var got []bot.ConnectionState
	sink := m.StateSink(nil)
	sink.StateChanged(bot.ConnectionState{ConnectionID: "a"})
	wrapped := m.StateSink(stateFunc(func(st bot.ConnectionState) { got = append(got, st) }))
	wrapped.StateChanged(bot.ConnectionState{ConnectionID: "b"})
	if len(got) != 1 || got[0].ConnectionID != "b" {
		t.Fatalf("state not forwarded: %+v", got)
	}

	depth := 7
	m.IndexQueue(func() int { return depth })

	body := scrape(t, m)
	mustContain(t, body,
		`agentarena_connections{status="spawned"} 2`,
		`agentarena_connections{status="disconnected"} 1`,
		`agentarena_connections{status="error"} 0`,
		`agentarena_actions_total{action="jump",status="success"} 1`,
		`agentarena_actions_total{action="jump",status="failure"} 1`,
		`agentarena_action_duration_seconds_count{action="jump"} 2`,
		`agentarena_listeners 4`,
		`agentarena_broadcast_dropped_total 2`,
		`agentarena_behavior_ticks_total{profile="miner",result="executed"} 1`,
		`agentarena_state_updates_total 2`,
		`agentarena_index_queue_depth 7`,
		`go_goroutines`,
	)
}

func TestMetrics_NoConnectionSource(t *testing.T) {
	body := scrape(t, New())
	if strings.Contains(body, "agentarena_connections") {
		t.Fatalf("connections gauge exported without a source")
	}
}

type stateFunc func(bot.ConnectionState)

func (f stateFunc) StateChanged(st bot.ConnectionState) { f(st) }
