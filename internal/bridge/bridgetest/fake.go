// Package bridgetest provides in-memory bridge sessions for tests.
package bridgetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"agentarena.ai/internal/bridge"
)

// Call records one motor call made against a Session.
type Call struct {
	Method string
	Args   []any
}

// Session is a scriptable bridge.Session. The zero value is not usable; use
// NewSession.
type Session struct {
	Params bridge.Params

	mu       sync.Mutex
	events   chan bridge.Event
	closed   bool
	spawned  bool
	pos      bridge.Vec3
	orient   bridge.Orientation
	vit      bridge.Vitality
	gameMode string
	inv      []bridge.Item
	blocks   []bridge.Block
	entities []bridge.Entity
	calls    []Call
	fail     map[string]error
	panics   map[string]bool

	// MoveDelay is how long MoveTowards takes to arrive.
	MoveDelay time.Duration
}

func NewSession(p bridge.Params) *Session {
	return &Session{
		Params:   p,
		events:   make(chan bridge.Event, 256),
		vit:      bridge.Vitality{Health: 20, Food: 20},
		gameMode: "survival",
		fail:     map[string]error{},
		panics:   map[string]bool{},
	}
}

// Emit pushes ev onto the event stream. Events after Quit are dropped.
func (s *Session) Emit(ev bridge.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.Kind == bridge.EventSpawn {
		s.spawned = true
	}
	select {
	case s.events <- ev:
	default:
	}
}

// Spawn walks the session through login and spawn.
func (s *Session) Spawn() {
	s.Emit(bridge.Event{Kind: bridge.EventLogin})
	s.Emit(bridge.Event{Kind: bridge.EventSpawn})
}

// End simulates the world closing the session.
func (s *Session) End(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(reason)
}

// Vanish closes the event stream without an end event, as a session that
// had to drop it does.
func (s *Session) Vanish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *Session) endLocked(reason string) {
	if s.closed {
		return
	}
	select {
	case s.events <- bridge.Event{Kind: bridge.EventEnd, Reason: reason}:
	default:
	}
	s.closed = true
	close(s.events)
}

func (s *Session) SetPosition(v bridge.Vec3) {
	s.mu.Lock()
	s.pos = v
	s.mu.Unlock()
}

func (s *Session) SetOrientation(o bridge.Orientation) {
	s.mu.Lock()
	s.orient = o
	s.mu.Unlock()
}

func (s *Session) SetVitality(v bridge.Vitality) {
	s.mu.Lock()
	s.vit = v
	s.mu.Unlock()
}

func (s *Session) SetInventory(items ...bridge.Item) {
	s.mu.Lock()
	s.inv = append([]bridge.Item(nil), items...)
	s.mu.Unlock()
}

func (s *Session) SetBlocks(blocks ...bridge.Block) {
	s.mu.Lock()
	s.blocks = append([]bridge.Block(nil), blocks...)
	s.mu.Unlock()
}

func (s *Session) SetEntities(ents ...bridge.Entity) {
	s.mu.Lock()
	s.entities = append([]bridge.Entity(nil), ents...)
	s.mu.Unlock()
}

// FailOn makes every call to method return err.
func (s *Session) FailOn(method string, err error) {
	s.mu.Lock()
	s.fail[method] = err
	s.mu.Unlock()
}

// PanicOn makes every call to method panic.
func (s *Session) PanicOn(method string) {
	s.mu.Lock()
	s.panics[method] = true
	s.mu.Unlock()
}

func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls of one method.
func (s *Session) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) record(method string, args ...any) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	err := s.fail[method]
	p := s.panics[method]
	closed := s.closed
	s.mu.Unlock()
	if p {
		panic(method + " exploded")
	}
	if closed {
		return bridge.ErrClosed
	}
	return err
}

func (s *Session) Events() <-chan bridge.Event { return s.events }

func (s *Session) Position() (bridge.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.spawned
}

func (s *Session) Orientation() (bridge.Orientation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orient, s.spawned
}

func (s *Session) Vitality() (bridge.Vitality, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vit, s.spawned
}

func (s *Session) GameMode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameMode, s.spawned && s.gameMode != ""
}

func (s *Session) Inventory() []bridge.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bridge.Item{}, s.inv...)
}

func (s *Session) BlockAt(pos bridge.Vec3) (bridge.Block, bool) {
	cell := pos.Floored()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.Position.Floored() == cell {
			return b, true
		}
	}
	return bridge.Block{}, false
}

func (s *Session) FindNearbyBlock(match func(bridge.Block) bool, maxDistance float64) (bridge.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best bridge.Block
	bestD := -1.0
	for _, b := range s.blocks {
		d := s.pos.DistanceTo(b.Position)
		if d > maxDistance || (match != nil && !match(b)) {
			continue
		}
		if bestD < 0 || d < bestD {
			best, bestD = b, d
		}
	}
	return best, bestD >= 0
}

func (s *Session) FindNearbyEntity(match func(bridge.Entity) bool) (bridge.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best bridge.Entity
	bestD := -1.0
	for _, e := range s.entities {
		if match != nil && !match(e) {
			continue
		}
		d := s.pos.DistanceTo(e.Position)
		if bestD < 0 || d < bestD {
			best, bestD = e, d
		}
	}
	return best, bestD >= 0
}

func (s *Session) MoveTowards(ctx context.Context, goal bridge.Vec3, tolerance float64, timeout time.Duration) error {
	if err := s.record("MoveTowards", goal, tolerance, timeout); err != nil {
		return err
	}
	wait := s.MoveDelay
	if wait > timeout {
		wait = timeout
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if s.MoveDelay > timeout {
		return bridge.ErrMoveTimeout
	}
	s.SetPosition(goal)
	return nil
}

func (s *Session) SetControlState(ctx context.Context, flag string, on bool) error {
	return s.record("SetControlState", flag, on)
}

func (s *Session) LookAt(ctx context.Context, point bridge.Vec3) error {
	return s.record("LookAt", point)
}

func (s *Session) Dig(ctx context.Context, b bridge.Block) error {
	if err := s.record("Dig", b); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.blocks {
		if x.Position == b.Position {
			s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Session) Place(ctx context.Context, ref bridge.Block, face bridge.Vec3) error {
	return s.record("Place", ref, face)
}

func (s *Session) Attack(ctx context.Context, e bridge.Entity) error {
	return s.record("Attack", e)
}

func (s *Session) Equip(ctx context.Context, item bridge.Item, destination string) error {
	return s.record("Equip", item, destination)
}

func (s *Session) ActivateItem(ctx context.Context) error {
	return s.record("ActivateItem")
}

func (s *Session) Interact(ctx context.Context, e bridge.Entity) error {
	return s.record("Interact", e)
}

func (s *Session) OpenContainer(ctx context.Context, b bridge.Block) (string, error) {
	if err := s.record("OpenContainer", b); err != nil {
		return "", err
	}
	return b.Name, nil
}

func (s *Session) Chat(ctx context.Context, text string) error {
	return s.record("Chat", text)
}

func (s *Session) Quit(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(reason)
}

// Dialer hands out Sessions. By default every session logs in and spawns
// right after Dial returns.
type Dialer struct {
	// Err fails every Dial.
	Err error
	// Script replaces the default login+spawn sequence. It runs on its own
	// goroutine.
	Script func(*Session)
	// Setup runs synchronously on each new session before it is returned.
	Setup func(*Session)

	mu       sync.Mutex
	sessions []*Session
}

func (d *Dialer) Dial(ctx context.Context, p bridge.Params) (bridge.Session, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := NewSession(p)
	if d.Setup != nil {
		d.Setup(s)
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	script := d.Script
	d.mu.Unlock()
	if script == nil {
		script = (*Session).Spawn
	}
	go script(s)
	return s, nil
}

// Sessions returns every session dialed so far.
func (d *Dialer) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// ByName returns the most recent session dialed for username.
func (d *Dialer) ByName(username string) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sessions) - 1; i >= 0; i-- {
		if d.sessions[i].Params.Username == username {
			return d.sessions[i], nil
		}
	}
	return nil, errors.New("no session for " + username)
}

var _ bridge.Session = (*Session)(nil)
var _ bridge.Dialer = (*Dialer)(nil)
