// Package behavior runs autonomous agents: one loop per agent picks a
// behavior from its profile and drives the agent's connection through the
// action dispatcher.
package behavior

import (
	"errors"
	"time"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSpawning   Status = "spawning"
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusTerminated Status = "terminated"
	StatusError      Status = "error"
)

var (
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrUnknownProfile    = errors.New("unknown profile")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Record is the runtime bookkeeping of one agent.
type Record struct {
	AgentID      string     `json:"agentId"`
	Name         string     `json:"name"`
	ConnectionID string     `json:"botId"`
	Profile      string     `json:"profile"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActionAt *time.Time `json:"lastActionAt"`
	ActionCount  int        `json:"actionCount"`
}

// ActionEvent records one executed behavior.
type ActionEvent struct {
	ActionID     string    `json:"actionId"`
	AgentID      string    `json:"agentId"`
	ConnectionID string    `json:"botId"`
	Behavior     string    `json:"behavior"`
	ActionType   string    `json:"actionType,omitempty"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMs   int64     `json:"durationMs"`
}

// EventSink receives every ActionEvent. Implementations must not block.
type EventSink interface {
	BehaviorEvent(ev ActionEvent)
}

type EventSinkFunc func(ActionEvent)

func (f EventSinkFunc) BehaviorEvent(ev ActionEvent) { f(ev) }

// History serves persisted action events, newest first.
type History interface {
	RecentActions(agentID string, limit int) ([]ActionEvent, error)
}
