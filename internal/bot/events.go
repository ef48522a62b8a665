package bot

import "time"

// EventKind names a per-connection event forwarded by the Manager.
type EventKind string

const (
	EventStatusChange EventKind = "status-change"
	EventSpawn        EventKind = "spawn"
	EventChat         EventKind = "chat"
	EventHealth       EventKind = "health"
	EventDeath        EventKind = "death"
	EventEntityHurt   EventKind = "entity-hurt"
	EventMove         EventKind = "move"
	EventKicked       EventKind = "kicked"
	EventError        EventKind = "error"
)

type Event struct {
	ConnectionID string         `json:"botId"`
	Kind         EventKind      `json:"event"`
	Data         map[string]any `json:"data,omitempty"`
	At           time.Time      `json:"at"`
}

// Listener receives Manager lifecycle and connection events. Calls are made
// synchronously from the goroutine that produced the event, so
// implementations must not block.
type Listener interface {
	ConnectionCreated(st ConnectionState)
	ConnectionRemoved(id string)
	ConnectionEvent(ev Event)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Created func(ConnectionState)
	Removed func(string)
	OnEvent func(Event)
}

func (f ListenerFuncs) ConnectionCreated(st ConnectionState) {
	if f.Created != nil {
		f.Created(st)
	}
}

func (f ListenerFuncs) ConnectionRemoved(id string) {
	if f.Removed != nil {
		f.Removed(id)
	}
}

func (f ListenerFuncs) ConnectionEvent(ev Event) {
	if f.OnEvent != nil {
		f.OnEvent(ev)
	}
}
