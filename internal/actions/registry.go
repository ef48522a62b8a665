package actions

import (
	"context"
	"sort"
	"sync"

	"agentarena.ai/internal/bridge"
)

// Handler runs one action kind against a live session. The returned message
// becomes the outcome message on success; an error becomes a failure outcome
// carrying err.Error().
type Handler interface {
	Execute(ctx context.Context, sess bridge.Session, req Request) (string, error)
}

type HandlerFunc func(ctx context.Context, sess bridge.Session, req Request) (string, error)

func (f HandlerFunc) Execute(ctx context.Context, sess bridge.Session, req Request) (string, error) {
	return f(ctx, sess, req)
}

// Registry maps an action type to its handler. Registering a type twice
// replaces the earlier handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[Type]Handler{}}
}

func (r *Registry) Register(t Type, h Handler) {
	r.mu.Lock()
	r.handlers[t] = h
	r.mu.Unlock()
}

func (r *Registry) Get(t Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

func (r *Registry) Has(t Type) bool {
	_, ok := r.Get(t)
	return ok
}

// Types returns the registered tags in sorted order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
