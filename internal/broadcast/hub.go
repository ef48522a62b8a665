// Package broadcast fans connection state, action outcomes and events out
// to real-time listeners, each with its own subscription set.
package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/observerproto"
	"agentarena.ai/internal/protocol"
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultPingPeriod   = 25 * time.Second
)

type StateSource interface {
	State(id string) (bot.ConnectionState, bool)
}

type Executor interface {
	Dispatch(ctx context.Context, req actions.Request) actions.Outcome
}

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	// PongWait is how long a websocket listener may stay silent, pongs
	// included, before it is dropped. PingPeriod must be shorter.
	PongWait   time.Duration
	PingPeriod time.Duration

	// Optional metric hooks.
	OnListeners func(n int)
	OnDrop      func()
}

type listener struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	subs   map[string]struct{}
	closed bool
}

func (l *listener) subscribed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subs[id]
	return ok
}

// Hub tracks attached listeners. Delivery never blocks: a listener whose
// queue is full loses that message and nobody else is affected.
type Hub struct {
	states StateSource
	exec   Executor
	log    *log.Logger
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	listeners map[string]*listener

	dropped atomic.Uint64
}

func NewHub(states StateSource, exec Executor, logger *log.Logger, opts Options) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = min(DefaultPingPeriod, opts.PongWait*9/10)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		states:    states,
		exec:      exec,
		log:       logger,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		listeners: map[string]*listener{},
	}
}

// Attach registers a new listener and returns its id and outbound queue.
// The queue is closed by Detach.
func (h *Hub) Attach() (string, <-chan []byte) {
	l := &listener{
		id:   uuid.NewString(),
		out:  make(chan []byte, h.opts.QueueSize),
		subs: map[string]struct{}{},
	}
	h.mu.Lock()
	h.listeners[l.id] = l
	n := len(h.listeners)
	h.mu.Unlock()
	h.reportListeners(n)
	return l.id, l.out
}

// Detach removes a listener. Unknown ids are ignored.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	l, ok := h.listeners[id]
	delete(h.listeners, id)
	n := len(h.listeners)
	h.mu.Unlock()
	if !ok {
		return
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.out)
	}
	l.subs = nil
	l.mu.Unlock()
	h.reportListeners(n)
}

func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Dropped is the number of messages discarded on full listener queues.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribe adds ids to the listener's subscription set and pushes the
// current snapshot of each known id right away.
func (h *Hub) Subscribe(listenerID string, ids []string) bool {
	l := h.get(listenerID)
	if l == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	for _, id := range ids {
		l.subs[id] = struct{}{}
	}
	l.mu.Unlock()

	if h.states == nil {
		return true
	}
	for _, id := range ids {
		if st, ok := h.states.State(id); ok {
			h.send(l, observerproto.StateUpdate(st))
		}
	}
	return true
}

func (h *Hub) Unsubscribe(listenerID string, ids []string) bool {
	l := h.get(listenerID)
	if l == nil {
		return false
	}
	l.mu.Lock()
	for _, id := range ids {
		delete(l.subs, id)
	}
	l.mu.Unlock()
	return true
}

// Subscriptions returns the listener's subscribed ids, sorted.
func (h *Hub) Subscriptions(listenerID string) []string {
	l := h.get(listenerID)
	if l == nil {
		return nil
	}
	l.mu.Lock()
	out := make([]string, 0, len(l.subs))
	for id := range l.subs {
		out = append(out, id)
	}
	l.mu.Unlock()
	sort.Strings(out)
	return out
}

// Handle processes one inbound message from a listener. Replies go to that
// listener's queue.
func (h *Hub) Handle(listenerID string, raw []byte) {
	l := h.get(listenerID)
	if l == nil {
		return
	}
	var env observerproto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.send(l, observerproto.Error(protocol.ErrBadRequest, "malformed message: "+err.Error()))
		return
	}
	switch env.Type {
	case observerproto.TypeSubscribe, observerproto.TypeUnsubscribe,
		observerproto.TypeExecuteAction, observerproto.TypePing:
	default:
		h.send(l, observerproto.Error(protocol.ErrUnknownType, "unknown message type: "+env.Type))
		return
	}
	if err := observerproto.ValidateClient(raw); err != nil {
		h.send(l, observerproto.Error(protocol.ErrBadRequest, err.Error()))
		return
	}

	switch env.Type {
	case observerproto.TypeSubscribe:
		var m observerproto.SubscribeMsg
		_ = json.Unmarshal(raw, &m)
		h.Subscribe(listenerID, m.BotIDs)
	case observerproto.TypeUnsubscribe:
		var m observerproto.SubscribeMsg
		_ = json.Unmarshal(raw, &m)
		h.Unsubscribe(listenerID, m.BotIDs)
	case observerproto.TypePing:
		h.send(l, observerproto.PongMsg{Type: observerproto.TypePong, At: actions.FormatTimestamp(time.Now())})
	case observerproto.TypeExecuteAction:
		var m observerproto.ExecuteActionMsg
		_ = json.Unmarshal(raw, &m)
		req, err := actions.Parse(m.Action)
		if err != nil {
			h.send(l, observerproto.Error(protocol.ErrBadRequest, err.Error()))
			return
		}
		if h.exec == nil {
			h.send(l, observerproto.Error(protocol.ErrInternal, "action execution is not available"))
			return
		}
		// Movement can take many seconds; keep reading meanwhile.
		go func() {
			out := h.exec.Dispatch(h.ctx, req)
			// Subscribers already get the result through the outcome hook.
			if !l.subscribed(req.ConnectionID) {
				h.send(l, observerproto.ActionResult(out))
			}
		}()
	}
}

// BroadcastAll sends a system notice to every listener.
func (h *Hub) BroadcastAll(message string) {
	h.publish("", observerproto.SystemMsg{Type: observerproto.TypeSystem, Message: message})
}

// StateChanged publishes a fresh snapshot to subscribers of st.ConnectionID.
func (h *Hub) StateChanged(st bot.ConnectionState) {
	h.publish(st.ConnectionID, observerproto.StateUpdate(st))
}

// ActionOutcome is registered as a dispatcher outcome hook.
func (h *Hub) ActionOutcome(_ actions.Request, out actions.Outcome) {
	h.publish(out.ConnectionID, observerproto.ActionResult(out))
}

func (h *Hub) ConnectionCreated(st bot.ConnectionState) {
	h.publish("", observerproto.BotEventMsg{
		Type:  observerproto.TypeBotEvent,
		BotID: st.ConnectionID,
		Event: "created",
		Data:  map[string]any{"username": st.DisplayName, "status": string(st.Status)},
		At:    actions.FormatTimestamp(time.Now()),
	})
}

func (h *Hub) ConnectionRemoved(id string) {
	h.publish(id, observerproto.BotEventMsg{
		Type:  observerproto.TypeBotEvent,
		BotID: id,
		Event: "removed",
		At:    actions.FormatTimestamp(time.Now()),
	})
	h.mu.RLock()
	ls := h.snapshotLocked()
	h.mu.RUnlock()
	for _, l := range ls {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

func (h *Hub) ConnectionEvent(ev bot.Event) {
	h.publish(ev.ConnectionID, observerproto.BotEventMsg{
		Type:  observerproto.TypeBotEvent,
		BotID: ev.ConnectionID,
		Event: string(ev.Kind),
		Data:  ev.Data,
		At:    actions.FormatTimestamp(ev.At),
	})
	// The observer only polls spawned connections, so status changes carry
	// their own snapshot.
	if ev.Kind == bot.EventStatusChange && h.states != nil {
		if st, ok := h.states.State(ev.ConnectionID); ok {
			h.StateChanged(st)
		}
	}
}

// BehaviorEvent publishes an autonomous agent's action event.
func (h *Hub) BehaviorEvent(ev behavior.ActionEvent) {
	h.publish(ev.ConnectionID, observerproto.BotEventMsg{
		Type:  observerproto.TypeBotEvent,
		BotID: ev.ConnectionID,
		Event: "behavior",
		Data: map[string]any{
			"actionId":   ev.ActionID,
			"agentId":    ev.AgentID,
			"behavior":   ev.Behavior,
			"actionType": ev.ActionType,
			"success":    ev.Success,
			"message":    ev.Message,
			"durationMs": ev.DurationMs,
		},
		At: actions.FormatTimestamp(ev.Timestamp),
	})
}

// Close detaches every listener and cancels in-flight listener actions.
func (h *Hub) Close() {
	h.cancel()
	h.mu.RLock()
	ids := make([]string, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Detach(id)
	}
}

// publish marshals once and enqueues to every listener subscribed to
// connectionID, or to all listeners when connectionID is empty.
func (h *Hub) publish(connectionID string, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Printf("marshal %T: %v", msg, err)
		return
	}
	h.mu.RLock()
	ls := h.snapshotLocked()
	h.mu.RUnlock()
	for _, l := range ls {
		if connectionID != "" && !l.subscribed(connectionID) {
			continue
		}
		h.enqueue(l, b)
	}
}

func (h *Hub) send(l *listener, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Printf("marshal %T: %v", msg, err)
		return
	}
	h.enqueue(l, b)
}

func (h *Hub) enqueue(l *listener, b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.out <- b:
	default:
		h.dropped.Add(1)
		if h.opts.OnDrop != nil {
			h.opts.OnDrop()
		}
	}
}

func (h *Hub) get(id string) *listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listeners[id]
}

func (h *Hub) snapshotLocked() []*listener {
	out := make([]*listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l)
	}
	return out
}

func (h *Hub) reportListeners(n int) {
	if h.opts.OnListeners != nil {
		h.opts.OnListeners(n)
	}
}
