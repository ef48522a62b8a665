package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"agentarena.ai/internal/protocol"
)

// WSDialer dials world gateways over websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

func (d WSDialer) Dial(ctx context.Context, p Params) (Session, error) {
	return DialWS(ctx, p, d.HandshakeTimeout)
}

// WSSession speaks the gateway protocol for a single agent.
type WSSession struct {
	cfg Params

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.RWMutex
	spawned  bool
	agentID  string
	self     protocol.SelfObs
	inv      []protocol.ItemStack
	blocks   []protocol.BlockObs
	entities []protocol.EntityObs

	seq     atomic.Uint64
	pmu     sync.Mutex
	pending map[string]chan protocol.ActResultMsg

	events    chan Event
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}

	reasonMu sync.Mutex
	reason   string
}

func DialWS(ctx context.Context, p Params, handshakeTimeout time.Duration) (*WSSession, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, fmt.Errorf("empty world ws url")
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := d.DialContext(ctx, p.URL, http.Header{})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       p.Username,
		GameVersion:     p.Version,
		AuthMode:        p.Auth,
		Host:            p.Host,
		Port:            p.Port,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := &WSSession{
		cfg:     p,
		conn:    conn,
		pending: map[string]chan protocol.ActResultMsg{},
		events:  make(chan Event, 64),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *WSSession) Events() <-chan Event { return s.events }

func (s *WSSession) Quit(reason string) {
	s.closeOnce.Do(func() {
		s.setReason(reason)
		close(s.closed)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
}

func (s *WSSession) setReason(r string) {
	s.reasonMu.Lock()
	if s.reason == "" {
		s.reason = r
	}
	s.reasonMu.Unlock()
}

func (s *WSSession) endReason() string {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	if s.reason == "" {
		return "unknown"
	}
	return s.reason
}

func (s *WSSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *WSSession) readLoop() {
	defer func() {
		s.failPending()
		// The final end event is delivered even after Quit so that consumers
		// still draining the stream observe it; drop it if nobody listens.
		select {
		case s.events <- Event{Kind: EventEnd, Reason: s.endReason()}:
		default:
		}
		close(s.events)
		close(s.done)
	}()

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.setReason(closeReason(err))
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if !protocol.IsSupportedVersion(base.ProtocolVersion) {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			s.mu.Lock()
			s.agentID = w.AgentID
			s.mu.Unlock()
			s.emit(Event{Kind: EventLogin})

		case protocol.TypeSpawn:
			var sp protocol.SpawnMsg
			if err := json.Unmarshal(msg, &sp); err != nil {
				continue
			}
			s.mu.Lock()
			s.self = sp.Self
			s.spawned = true
			s.mu.Unlock()
			s.emit(Event{Kind: EventSpawn})

		case protocol.TypeObs:
			var o protocol.ObsMsg
			if err := json.Unmarshal(msg, &o); err != nil {
				continue
			}
			s.applyObs(o)

		case protocol.TypeEvent:
			var e protocol.EventMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			switch e.Kind {
			case protocol.EventChat:
				s.emit(Event{Kind: EventChat, Username: e.Username, Message: e.Message})
			case protocol.EventDeath:
				s.emit(Event{Kind: EventDeath})
			case protocol.EventEntityHurt:
				s.emit(Event{Kind: EventEntityHurt, EntityID: e.EntityID})
			}

		case protocol.TypeActResult:
			var r protocol.ActResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			s.pmu.Lock()
			ch := s.pending[r.ID]
			delete(s.pending, r.ID)
			s.pmu.Unlock()
			if ch != nil {
				ch <- r
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			s.emit(Event{Kind: EventError, Err: fmt.Errorf("%s: %s", e.Code, e.Message)})
		}
	}
}

func (s *WSSession) applyObs(o protocol.ObsMsg) {
	s.mu.Lock()
	prev := s.self
	wasSpawned := s.spawned
	s.self = o.Self
	s.inv = o.Inventory
	s.blocks = o.Blocks
	s.entities = o.Entities
	s.mu.Unlock()
	if !wasSpawned {
		return
	}
	if prev.Pos != o.Self.Pos {
		s.emit(Event{Kind: EventMove, Position: vecOf(o.Self.Pos)})
	}
	if prev.Health != o.Self.Health || prev.Food != o.Self.Food {
		s.emit(Event{Kind: EventHealth, Vitality: Vitality{Health: o.Self.Health, Food: o.Self.Food}})
	}
}

func (s *WSSession) failPending() {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return ce.Text
		}
		return fmt.Sprintf("closed (%d)", ce.Code)
	}
	return err.Error()
}

func vecOf(p [3]float64) Vec3 { return Vec3{X: p[0], Y: p[1], Z: p[2]} }

func cellOf(v Vec3) [3]int {
	f := v.Floored()
	return [3]int{int(f.X), int(f.Y), int(f.Z)}
}

// Queries.

func (s *WSSession) Position() (Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.spawned {
		return Vec3{}, false
	}
	return vecOf(s.self.Pos), true
}

func (s *WSSession) Orientation() (Orientation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.spawned {
		return Orientation{}, false
	}
	return Orientation{Yaw: s.self.Yaw, Pitch: s.self.Pitch}, true
}

func (s *WSSession) Vitality() (Vitality, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.spawned {
		return Vitality{}, false
	}
	return Vitality{Health: s.self.Health, Food: s.self.Food}, true
}

func (s *WSSession) GameMode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.spawned || s.self.GameMode == "" {
		return "", false
	}
	return s.self.GameMode, true
}

func (s *WSSession) Inventory() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.inv))
	for _, it := range s.inv {
		out = append(out, Item{Slot: it.Slot, Name: it.Name, Count: it.Count})
	}
	return out
}

func (s *WSSession) BlockAt(pos Vec3) (Block, bool) {
	want := cellOf(pos)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.blocks {
		if b.Pos == want {
			return Block{Name: b.Name, Position: Vec3{X: float64(b.Pos[0]), Y: float64(b.Pos[1]), Z: float64(b.Pos[2])}}, true
		}
	}
	return Block{}, false
}

func (s *WSSession) FindNearbyBlock(match func(Block) bool, maxDistance float64) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	self := vecOf(s.self.Pos)
	var best Block
	bestD := -1.0
	for _, b := range s.blocks {
		blk := Block{Name: b.Name, Position: Vec3{X: float64(b.Pos[0]), Y: float64(b.Pos[1]), Z: float64(b.Pos[2])}}
		d := self.DistanceTo(blk.Position)
		if d > maxDistance || (match != nil && !match(blk)) {
			continue
		}
		if bestD < 0 || d < bestD {
			best, bestD = blk, d
		}
	}
	return best, bestD >= 0
}

func (s *WSSession) FindNearbyEntity(match func(Entity) bool) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	self := vecOf(s.self.Pos)
	var best Entity
	bestD := -1.0
	for _, e := range s.entities {
		ent := Entity{ID: e.ID, Type: e.Type, Username: e.Username, Name: e.Name, Position: vecOf(e.Pos)}
		if ent.Username != "" && ent.Username == s.cfg.Username {
			continue
		}
		if match != nil && !match(ent) {
			continue
		}
		d := self.DistanceTo(ent.Position)
		if bestD < 0 || d < bestD {
			best, bestD = ent, d
		}
	}
	return best, bestD >= 0
}

// Motor actions.

func (s *WSSession) request(ctx context.Context, act protocol.ActMsg) error {
	select {
	case <-s.closed:
		return ErrClosed
	case <-s.done:
		return ErrClosed
	default:
	}
	act.Type = protocol.TypeAct
	act.ProtocolVersion = protocol.Version
	act.ID = fmt.Sprintf("act_%d", s.seq.Add(1))

	ch := make(chan protocol.ActResultMsg, 1)
	s.pmu.Lock()
	s.pending[act.ID] = ch
	s.pmu.Unlock()
	drop := func() {
		s.pmu.Lock()
		delete(s.pending, act.ID)
		s.pmu.Unlock()
	}

	b, _ := json.Marshal(act)
	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := s.conn.WriteMessage(websocket.TextMessage, b)
	s.writeMu.Unlock()
	if err != nil {
		drop()
		return err
	}

	select {
	case <-ctx.Done():
		drop()
		return ctx.Err()
	case <-s.done:
		drop()
		return ErrClosed
	case r, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if !r.OK {
			if r.Message != "" {
				return errors.New(r.Message)
			}
			return fmt.Errorf("%s: %s rejected", r.Code, act.Action)
		}
		return nil
	}
}

func (s *WSSession) MoveTowards(ctx context.Context, goal Vec3, tolerance float64, timeout time.Duration) error {
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	target := [3]float64{goal.X, goal.Y, goal.Z}
	err := s.request(ctx2, protocol.ActMsg{
		Action:    protocol.ActMoveTo,
		Target:    &target,
		Tolerance: tolerance,
		TimeoutMS: timeout.Milliseconds(),
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// Clear the goal so the agent stops walking.
		clearCtx, clearCancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.request(clearCtx, protocol.ActMsg{Action: protocol.ActMoveTo})
		clearCancel()
		return ErrMoveTimeout
	}
	return err
}

func (s *WSSession) SetControlState(ctx context.Context, flag string, on bool) error {
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActControl, Flag: flag, Enabled: &on})
}

func (s *WSSession) LookAt(ctx context.Context, point Vec3) error {
	target := [3]float64{point.X, point.Y, point.Z}
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActLookAt, Target: &target})
}

func (s *WSSession) Dig(ctx context.Context, b Block) error {
	cell := cellOf(b.Position)
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActDig, Block: &cell})
}

func (s *WSSession) Place(ctx context.Context, ref Block, face Vec3) error {
	cell := cellOf(ref.Position)
	f := [3]int{int(face.X), int(face.Y), int(face.Z)}
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActPlace, Block: &cell, Face: &f})
}

func (s *WSSession) Attack(ctx context.Context, e Entity) error {
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActAttack, EntityID: e.ID})
}

func (s *WSSession) Equip(ctx context.Context, item Item, destination string) error {
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActEquip, Item: item.Name, Destination: destination})
}

func (s *WSSession) ActivateItem(ctx context.Context) error {
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActActivateItem})
}

func (s *WSSession) Interact(ctx context.Context, e Entity) error {
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActInteract, EntityID: e.ID})
}

// OpenContainer opens and immediately closes the container at b, returning
// the block name the world reported.
func (s *WSSession) OpenContainer(ctx context.Context, b Block) (string, error) {
	cell := cellOf(b.Position)
	if err := s.request(ctx, protocol.ActMsg{Action: protocol.ActOpenContainer, Block: &cell}); err != nil {
		return "", err
	}
	return b.Name, nil
}

func (s *WSSession) Chat(ctx context.Context, text string) error {
	return s.request(ctx, protocol.ActMsg{Action: protocol.ActChat, Text: text})
}
