package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"agentarena.ai/internal/bridge"
)

// Config is the immutable identity and target of one connection.
type Config struct {
	ConnectionID string
	DisplayName  string
	URL          string
	Host         string
	Port         int
	Version      string
	Auth         string
}

// Connection owns a single agent session and its lifecycle:
//
//	disconnected -> connecting -> connected -> spawned
//
// with error reachable from any state and disconnected reachable after an
// abrupt end or an explicit Disconnect.
type Connection struct {
	cfg    Config
	dialer bridge.Dialer
	sink   func(Event)
	logger *log.Logger

	mu            sync.RWMutex
	status        Status
	session       bridge.Session
	gen           uint64
	attached      bool
	lastUpdatedAt time.Time
}

func NewConnection(cfg Config, dialer bridge.Dialer, sink func(Event), logger *log.Logger) *Connection {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Connection{
		cfg:           cfg,
		dialer:        dialer,
		sink:          sink,
		logger:        logger,
		status:        StatusDisconnected,
		lastUpdatedAt: time.Now().UTC(),
	}
}

func (c *Connection) ID() string          { return c.cfg.ConnectionID }
func (c *Connection) DisplayName() string { return c.cfg.DisplayName }

func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Session returns the live session, or nil when not connected.
func (c *Connection) Session() bridge.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Connect dials the world and blocks until the agent has spawned, the
// handshake fails, or ctx ends.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return fmt.Errorf("connection %s is already connected", c.cfg.ConnectionID)
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.setStatus(gen, StatusConnecting)

	sess, err := c.dialer.Dial(ctx, bridge.Params{
		URL:      c.cfg.URL,
		Username: c.cfg.DisplayName,
		Host:     c.cfg.Host,
		Port:     c.cfg.Port,
		Version:  c.cfg.Version,
		Auth:     c.cfg.Auth,
	})
	if err != nil {
		c.setStatus(gen, StatusError)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// Disconnected while dialing.
		c.mu.Unlock()
		sess.Quit("disconnected during connect")
		return fmt.Errorf("connection %s was disconnected during connect", c.cfg.ConnectionID)
	}
	c.session = sess
	c.mu.Unlock()

	ready := make(chan error, 1)
	go c.pump(sess, gen, ready)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		c.Disconnect()
		c.setStatusAny(StatusError)
		return ctx.Err()
	}
}

// Disconnect detaches listeners, ends the session, and forces the status to
// disconnected whatever it was. Safe to call repeatedly.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.attached = false
	c.gen++
	prev := c.status
	c.status = StatusDisconnected
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()

	if sess != nil {
		sess.Quit("disconnect requested")
	}
	if prev != StatusDisconnected {
		c.forward(Event{Kind: EventStatusChange, Data: map[string]any{"status": string(StatusDisconnected)}})
	}
}

// State builds a snapshot. It never fails; fields that are unavailable in the
// current status are nil.
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	status := c.status
	sess := c.session
	updated := c.lastUpdatedAt
	c.mu.RUnlock()

	st := ConnectionState{
		ConnectionID:  c.cfg.ConnectionID,
		DisplayName:   c.cfg.DisplayName,
		Status:        status,
		Inventory:     []bridge.Item{},
		LastUpdatedAt: updated,
	}
	if sess == nil {
		return st
	}
	st.Inventory = sess.Inventory()
	if st.Inventory == nil {
		st.Inventory = []bridge.Item{}
	}
	if status != StatusSpawned {
		return st
	}
	if p, ok := sess.Position(); ok {
		st.Position = &p
	}
	if o, ok := sess.Orientation(); ok {
		st.Orientation = &o
	}
	if v, ok := sess.Vitality(); ok {
		h, f := v.Health, v.Food
		st.Health, st.Food = &h, &f
	}
	if gm, ok := sess.GameMode(); ok {
		st.GameMode = &gm
	}
	return st
}

func (c *Connection) pump(sess bridge.Session, gen uint64, ready chan<- error) {
	signaled := false
	signal := func(err error) {
		if !signaled {
			signaled = true
			ready <- err
		}
	}
	defer signal(fmt.Errorf("session closed before spawn"))

	ended := false
	defer func() {
		// The stream can close without its end event when the session had to
		// drop it.
		if signaled && !ended && c.current(gen) {
			c.sessionEnded(gen, "session closed")
		}
	}()

	for ev := range sess.Events() {
		if !c.current(gen) {
			continue
		}
		switch ev.Kind {
		case bridge.EventLogin:
			c.setStatus(gen, StatusConnected)

		case bridge.EventSpawn:
			c.mu.Lock()
			first := !c.attached && c.gen == gen
			if first {
				c.attached = true
			}
			c.mu.Unlock()
			c.setStatus(gen, StatusSpawned)
			if first {
				c.forward(Event{Kind: EventSpawn})
			}
			signal(nil)

		case bridge.EventError:
			msg := "unknown error"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			if !signaled {
				c.setStatus(gen, StatusError)
				signal(fmt.Errorf("%s", msg))
				continue
			}
			c.logger.Printf("[%s] session error: %s", c.cfg.DisplayName, msg)
			c.forwardAttached(gen, Event{Kind: EventError, Data: map[string]any{"message": msg}})

		case bridge.EventEnd:
			reason := ev.Reason
			if reason == "" {
				reason = "unknown"
			}
			if !signaled {
				c.setStatus(gen, StatusError)
				signal(fmt.Errorf("connection ended before spawn: %s", reason))
				continue
			}
			ended = true
			c.sessionEnded(gen, reason)

		case bridge.EventChat:
			c.touch()
			c.forwardAttached(gen, Event{Kind: EventChat, Data: map[string]any{"username": ev.Username, "message": ev.Message}})
		case bridge.EventHealth:
			c.touch()
			c.forwardAttached(gen, Event{Kind: EventHealth, Data: map[string]any{"health": ev.Vitality.Health, "food": ev.Vitality.Food}})
		case bridge.EventDeath:
			c.touch()
			c.forwardAttached(gen, Event{Kind: EventDeath})
		case bridge.EventEntityHurt:
			c.touch()
			c.forwardAttached(gen, Event{Kind: EventEntityHurt, Data: map[string]any{"entityId": ev.EntityID}})
		case bridge.EventMove:
			c.touch()
			c.forwardAttached(gen, Event{Kind: EventMove, Data: map[string]any{"position": ev.Position}})
		}
	}
}

func (c *Connection) sessionEnded(gen uint64, reason string) {
	c.forwardAttached(gen, Event{Kind: EventKicked, Data: map[string]any{"reason": reason}})
	c.mu.Lock()
	if c.gen == gen {
		c.session = nil
		c.attached = false
	}
	c.mu.Unlock()
	c.setStatus(gen, StatusDisconnected)
	c.logger.Printf("[%s] session ended: %s", c.cfg.DisplayName, reason)
}

func (c *Connection) current(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen == gen
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()
}

// setStatus applies a transition only if gen is still the live session.
func (c *Connection) setStatus(gen uint64, s Status) {
	c.mu.Lock()
	if c.gen != gen || c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()
	c.forward(Event{Kind: EventStatusChange, Data: map[string]any{"status": string(s)}})
}

func (c *Connection) setStatusAny(s Status) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.setStatus(gen, s)
}

func (c *Connection) forwardAttached(gen uint64, ev Event) {
	c.mu.RLock()
	ok := c.attached && c.gen == gen
	c.mu.RUnlock()
	if ok {
		c.forward(ev)
	}
}

func (c *Connection) forward(ev Event) {
	if c.sink == nil {
		return
	}
	ev.ConnectionID = c.cfg.ConnectionID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	c.sink(ev)
}
