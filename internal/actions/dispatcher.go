package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge"
)

// Connections resolves a connection id to its live Connection.
type Connections interface {
	Get(id string) (*bot.Connection, bool)
}

// Dispatcher validates and executes requests. Dispatch never returns an
// error: every failure is reported as a failure Outcome.
type Dispatcher struct {
	conns    Connections
	registry *Registry
	limiter  *RateLimiter
	logger   *log.Logger
	now      func() time.Time

	mu    sync.RWMutex
	hooks []func(Request, Outcome)
}

func NewDispatcher(conns Connections, registry *Registry, limiter *RateLimiter, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		conns:    conns,
		registry: registry,
		limiter:  limiter,
		logger:   logger,
		now:      time.Now,
	}
}

// OnOutcome registers fn to observe every outcome after dispatch. Hooks run
// synchronously on the dispatching goroutine and must not block.
func (d *Dispatcher) OnOutcome(fn func(Request, Outcome)) {
	d.mu.Lock()
	d.hooks = append(d.hooks, fn)
	d.mu.Unlock()
}

// Dispatch runs req through rate limit, existence, spawn and handler checks,
// then executes it. Checks short-circuit in that order.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	start := d.now()
	out := d.dispatch(ctx, req)
	end := d.now()
	out.ConnectionID = req.ConnectionID
	out.ActionType = req.Type
	out.DurationMs = end.Sub(start).Milliseconds()
	if out.DurationMs < 0 {
		out.DurationMs = 0
	}
	out.CompletedAt = FormatTimestamp(end)

	d.mu.RLock()
	hooks := d.hooks
	d.mu.RUnlock()
	for _, fn := range hooks {
		fn(req, out)
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Outcome {
	if !d.limiter.Allow(req.ConnectionID) {
		return failure("Rate limit exceeded: too many actions per second")
	}
	conn, ok := d.conns.Get(req.ConnectionID)
	if !ok {
		d.limiter.Forget(req.ConnectionID)
		return failure(fmt.Sprintf("Bot %q not found", req.ConnectionID))
	}
	if st := conn.Status(); st != bot.StatusSpawned {
		return failure(fmt.Sprintf("Bot %q is not spawned (current status: %s)", req.ConnectionID, st))
	}
	h, ok := d.registry.Get(req.Type)
	if !ok {
		return failure(fmt.Sprintf("No handler registered for action type %q", req.Type))
	}
	sess := conn.Session()
	if sess == nil {
		return failure(fmt.Sprintf("Bot %q is not spawned (current status: %s)", req.ConnectionID, bot.StatusDisconnected))
	}
	if err := req.Validate(); err != nil {
		return failure("Invalid action: " + err.Error())
	}

	msg, err := d.execute(ctx, h, sess, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Outcome{Status: StatusCancelled, Message: err.Error()}
		}
		d.logger.Printf("%s on %s failed: %v", req.Type, req.ConnectionID, err)
		return failure(err.Error())
	}
	return Outcome{Status: StatusSuccess, Message: msg}
}

func (d *Dispatcher) execute(ctx context.Context, h Handler, sess bridge.Session, req Request) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return h.Execute(ctx, sess, req)
}

func failure(msg string) Outcome {
	return Outcome{Status: StatusFailure, Message: msg}
}
