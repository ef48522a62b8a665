package behavior

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/profiles"
)

const maxActionLog = 100

// ConnectionManager is the subset of bot.Manager agents need.
type ConnectionManager interface {
	Connections
	Create(ctx context.Context, p bot.CreateParams) (bot.ConnectionState, error)
	Remove(id string) bool
}

type AgentsConfig struct {
	Manager    ConnectionManager
	Dispatcher Dispatcher
	Profiles   *profiles.Catalogue
	// History, when set, serves ActionLog instead of the in-memory ring.
	History History
	// Sinks receive every ActionEvent after it is recorded in memory.
	Sinks []EventSink
	// Records, when set, is told about every record status change.
	Records RecordSink
	Logger  *log.Logger
}

// RecordSink persists agent records as they change.
type RecordSink interface {
	RecordAgent(rec Record)
}

// Agents owns the runtime records of autonomous agents and their loops.
type Agents struct {
	mgr      ConnectionManager
	catalog  *profiles.Catalogue
	history  History
	sinks    []EventSink
	recSink  RecordSink
	logger   *log.Logger
	executor *Executor

	mu      sync.Mutex
	records map[string]*Record
	recent  map[string][]ActionEvent
}

func NewAgents(cfg AgentsConfig) *Agents {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	a := &Agents{
		mgr:     cfg.Manager,
		catalog: cfg.Profiles,
		history: cfg.History,
		sinks:   cfg.Sinks,
		recSink: cfg.Records,
		logger:  logger,
		records: map[string]*Record{},
		recent:  map[string][]ActionEvent{},
	}
	a.executor = NewExecutor(a, cfg.Manager, cfg.Dispatcher, EventSinkFunc(a.onEvent), logger)
	return a
}

func (a *Agents) Executor() *Executor { return a.executor }

// Spawn creates a connection for a new agent and starts its behavior loop.
func (a *Agents) Spawn(ctx context.Context, name, profileName string) (Record, error) {
	p, ok := a.catalog.Get(profileName)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profileName)
	}
	rec := &Record{
		AgentID:   uuid.NewString(),
		Name:      name,
		Profile:   p.Name,
		Status:    StatusSpawning,
		CreatedAt: time.Now().UTC(),
	}
	a.mu.Lock()
	a.records[rec.AgentID] = rec
	a.mu.Unlock()

	st, err := a.mgr.Create(ctx, bot.CreateParams{DisplayName: name})
	if err != nil {
		a.mu.Lock()
		delete(a.records, rec.AgentID)
		a.mu.Unlock()
		return Record{}, fmt.Errorf("spawn agent %s: %w", name, err)
	}

	// Terminate may have dropped the record while Create was blocked.
	a.mu.Lock()
	if !a.ownsLocked(rec, StatusSpawning) {
		a.mu.Unlock()
		a.mgr.Remove(st.ConnectionID)
		return Record{}, fmt.Errorf("%w: %s terminated while spawning", ErrUnknownAgent, rec.AgentID)
	}
	rec.ConnectionID = st.ConnectionID
	rec.Status = StatusActive
	out := *rec
	a.publish(out)
	a.mu.Unlock()

	a.executor.Start(rec.AgentID, p)
	a.mu.Lock()
	live := a.ownsLocked(rec, "")
	a.mu.Unlock()
	if !live {
		a.executor.Stop(rec.AgentID)
		a.mgr.Remove(st.ConnectionID)
		return Record{}, fmt.Errorf("%w: %s terminated while spawning", ErrUnknownAgent, rec.AgentID)
	}
	a.logger.Printf("[%s] spawned %s as %s", rec.AgentID, p.Name, name)
	return out, nil
}

// ownsLocked reports whether rec is still the registered record for its id,
// and, when status is set, whether it still has that status.
func (a *Agents) ownsLocked(rec *Record, status Status) bool {
	cur, ok := a.records[rec.AgentID]
	if !ok || cur != rec {
		return false
	}
	return status == "" || cur.Status == status
}

func (a *Agents) transition(agentID string, from, to Status) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[agentID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if rec.Status != from {
		return Record{}, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, agentID, rec.Status, from)
	}
	rec.Status = to
	out := *rec
	a.publish(out)
	return out, nil
}

func (a *Agents) publish(rec Record) {
	if a.recSink != nil {
		a.recSink.RecordAgent(rec)
	}
}

// Pause keeps the loop running but makes every tick a no-op.
func (a *Agents) Pause(agentID string) (Record, error) {
	return a.transition(agentID, StatusActive, StatusPaused)
}

func (a *Agents) Resume(agentID string) (Record, error) {
	return a.transition(agentID, StatusPaused, StatusActive)
}

// Terminate drops the record, stops the loop and removes the connection.
func (a *Agents) Terminate(agentID string) (Record, error) {
	a.mu.Lock()
	rec, ok := a.records[agentID]
	if !ok {
		a.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	rec.Status = StatusTerminated
	out := *rec
	delete(a.records, agentID)
	delete(a.recent, agentID)
	a.mu.Unlock()

	a.executor.Stop(agentID)
	if out.ConnectionID != "" {
		a.mgr.Remove(out.ConnectionID)
	}
	a.publish(out)
	a.logger.Printf("[%s] terminated", agentID)
	return out, nil
}

// TerminateAll terminates every agent and returns how many there were.
func (a *Agents) TerminateAll() int {
	n := 0
	for _, r := range a.List() {
		if _, err := a.Terminate(r.AgentID); err == nil {
			n++
		}
	}
	return n
}

func (a *Agents) Get(agentID string) (Record, bool) { return a.Record(agentID) }

// Record implements RecordStore.
func (a *Agents) Record(agentID string) (Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[agentID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// RecordAction implements RecordStore.
func (a *Agents) RecordAction(agentID string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.records[agentID]; ok {
		rec.ActionCount++
		t := at
		rec.LastActionAt = &t
	}
}

// List returns all records, oldest first.
func (a *Agents) List() []Record {
	a.mu.Lock()
	out := make([]Record, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, *r)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

func (a *Agents) onEvent(ev ActionEvent) {
	a.mu.Lock()
	ring := append(a.recent[ev.AgentID], ev)
	if len(ring) > maxActionLog {
		ring = ring[len(ring)-maxActionLog:]
	}
	a.recent[ev.AgentID] = ring
	a.mu.Unlock()
	for _, s := range a.sinks {
		s.BehaviorEvent(ev)
	}
}

// ActionLog returns up to limit of the agent's most recent action events,
// newest first. limit is clamped to [1,100].
func (a *Agents) ActionLog(agentID string, limit int) ([]ActionEvent, error) {
	if limit <= 0 || limit > maxActionLog {
		limit = maxActionLog
	}
	a.mu.Lock()
	_, known := a.records[agentID]
	mem := a.recent[agentID]
	out := make([]ActionEvent, 0, min(limit, len(mem)))
	for i := len(mem) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, mem[i])
	}
	a.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if a.history != nil {
		evs, err := a.history.RecentActions(agentID, limit)
		if err != nil {
			return nil, err
		}
		return evs, nil
	}
	return out, nil
}

// Health describes one agent together with its connection.
type Health struct {
	AgentID          string     `json:"agentId"`
	Status           Status     `json:"status"`
	ConnectionStatus bot.Status `json:"botStatus"`
	Connected        bool       `json:"connected"`
	LoopRunning      bool       `json:"loopRunning"`
	ActionCount      int        `json:"actionCount"`
	LastActionAt     *time.Time `json:"lastActionAt"`
	UptimeSeconds    int64      `json:"uptimeSeconds"`
}

func (a *Agents) Health(agentID string) (Health, error) {
	rec, ok := a.Record(agentID)
	if !ok {
		return Health{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	h := Health{
		AgentID:          rec.AgentID,
		Status:           rec.Status,
		ConnectionStatus: bot.StatusDisconnected,
		LoopRunning:      a.executor.Running(agentID),
		ActionCount:      rec.ActionCount,
		LastActionAt:     rec.LastActionAt,
		UptimeSeconds:    int64(time.Since(rec.CreatedAt).Seconds()),
	}
	if c, ok := a.mgr.Get(rec.ConnectionID); ok {
		h.ConnectionStatus = c.Status()
		h.Connected = h.ConnectionStatus == bot.StatusSpawned
	}
	return h, nil
}

// Summary counts agents by status.
func (a *Agents) Summary() map[Status]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := map[Status]int{}
	for _, r := range a.records {
		out[r.Status]++
	}
	return out
}

// Close terminates every agent.
func (a *Agents) Close() {
	a.TerminateAll()
}
