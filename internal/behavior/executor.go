package behavior

import (
	"context"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/profiles"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req actions.Request) actions.Outcome
}

type Connections interface {
	Get(id string) (*bot.Connection, bool)
}

// RecordStore is the executor's view of agent bookkeeping.
type RecordStore interface {
	Record(agentID string) (Record, bool)
	RecordAction(agentID string, at time.Time)
}

// TickResult describes what one tick did.
type TickResult string

const (
	TickExecuted TickResult = "executed"
	TickFailed   TickResult = "failed"
	TickSkipped  TickResult = "skipped"
)

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Executor struct {
	store  RecordStore
	conns  Connections
	disp   Dispatcher
	sink   EventSink
	logger *log.Logger

	// OnTick observes every tick result, labelled by profile.
	OnTick func(profile string, res TickResult)

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.Mutex
	loops map[string]*loop
}

func NewExecutor(store RecordStore, conns Connections, disp Dispatcher, sink EventSink, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{
		store:  store,
		conns:  conns,
		disp:   disp,
		sink:   sink,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		loops:  map[string]*loop{},
	}
}

// Seed makes behavior selection deterministic.
func (e *Executor) Seed(seed int64) {
	e.rngMu.Lock()
	e.rng = rand.New(rand.NewSource(seed))
	e.rngMu.Unlock()
}

// Start begins the agent's loop with the profile's interval. A running loop
// for the same agent is replaced.
func (e *Executor) Start(agentID string, p profiles.Profile) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	prev := e.loops[agentID]
	e.loops[agentID] = l
	e.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	interval := p.Interval()
	go func() {
		defer close(l.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				e.Tick(ctx, agentID, p)
			}
		}
	}()
	e.logger.Printf("started for agent %s (%s, every %s)", agentID, p.Name, interval.Round(time.Millisecond))
}

// Stop cancels the agent's loop and waits for an in-flight tick to return.
// Stopping an agent without a loop is a no-op.
func (e *Executor) Stop(agentID string) {
	e.mu.Lock()
	l, ok := e.loops[agentID]
	delete(e.loops, agentID)
	e.mu.Unlock()
	if !ok {
		return
	}
	l.cancel()
	<-l.done
	e.logger.Printf("stopped for agent %s", agentID)
}

func (e *Executor) StopAll() {
	for _, id := range e.Active() {
		e.Stop(id)
	}
}

func (e *Executor) Running(agentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loops[agentID]
	return ok
}

func (e *Executor) Active() []string {
	e.mu.Lock()
	out := make([]string, 0, len(e.loops))
	for id := range e.loops {
		out = append(out, id)
	}
	e.mu.Unlock()
	sort.Strings(out)
	return out
}

// Tick runs one behavior for agentID. Agents that are not active, or whose
// connection is missing or not spawned, are skipped. A tick never panics.
func (e *Executor) Tick(ctx context.Context, agentID string, p profiles.Profile) (res TickResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("[%s] tick panic: %v", agentID, r)
			res = TickFailed
		}
		if e.OnTick != nil {
			e.OnTick(p.Name, res)
		}
	}()

	rec, ok := e.store.Record(agentID)
	if !ok || rec.Status != StatusActive {
		return TickSkipped
	}
	conn, ok := e.conns.Get(rec.ConnectionID)
	if !ok {
		e.logger.Printf("[%s] connection %s not found, skipping", agentID, rec.ConnectionID)
		return TickSkipped
	}
	sess := conn.Session()
	if sess == nil || conn.Status() != bot.StatusSpawned {
		e.logger.Printf("[%s] connection %s not ready (%s), skipping", agentID, rec.ConnectionID, conn.Status())
		return TickSkipped
	}

	e.rngMu.Lock()
	behavior := p.Pick(e.rng)
	plan := Build(behavior, rec.ConnectionID, sess, e.rng)
	e.rngMu.Unlock()

	start := time.Now()
	ev := ActionEvent{
		ActionID:     uuid.NewString(),
		AgentID:      agentID,
		ConnectionID: rec.ConnectionID,
		Behavior:     behavior,
		Success:      plan.Known,
		Message:      plan.Note,
	}
	for _, req := range plan.Steps {
		out := e.disp.Dispatch(ctx, req)
		ev.ActionType = string(req.Type)
		if !out.OK() {
			ev.Success = false
			ev.Message = out.Message
			break
		}
		if plan.Note == "" {
			ev.Message = out.Message
		}
	}
	if ev.Message == "" {
		ev.Message = "Executed " + behavior
	}
	now := time.Now().UTC()
	ev.Timestamp = now
	ev.DurationMs = now.Sub(start).Milliseconds()

	e.logger.Printf("[%s] %s: %s", agentID, behavior, ev.Message)
	if e.sink != nil {
		e.sink.BehaviorEvent(ev)
	}
	e.store.RecordAction(agentID, now)
	if !ev.Success {
		return TickFailed
	}
	return TickExecuted
}
