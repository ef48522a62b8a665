// Package observer polls connection state and reports only real changes.
package observer

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"agentarena.ai/internal/bot"
)

type StateSource interface {
	States() []bot.ConnectionState
}

type StateSink interface {
	StateChanged(st bot.ConnectionState)
}

type StateSinkFunc func(bot.ConnectionState)

func (f StateSinkFunc) StateChanged(st bot.ConnectionState) { f(st) }

type Observer struct {
	src    StateSource
	sink   StateSink
	logger *log.Logger

	ticking atomic.Bool

	cacheMu sync.Mutex
	cache   map[string]uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(src StateSource, sink StateSink, logger *log.Logger) *Observer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Observer{
		src:    src,
		sink:   sink,
		logger: logger,
		cache:  map[string]uint64{},
	}
}

// Start begins polling every interval. Calling Start while running does
// nothing.
func (o *Observer) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.loop(ctx, interval, o.done)
	o.logger.Printf("polling every %s", interval)
}

// Stop ends polling, waits for an in-progress tick to finish and forgets
// every fingerprint. Safe to call when not running.
func (o *Observer) Stop() {
	o.runMu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	// A restarted observer reports every connection afresh.
	o.cacheMu.Lock()
	o.cache = map[string]uint64{}
	o.cacheMu.Unlock()
}

func (o *Observer) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.cancel != nil
}

func (o *Observer) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.Tick(ctx)
		}
	}
}

// Tick runs one polling pass and returns how many changes it reported. A
// Tick that starts while another is still running returns immediately.
func (o *Observer) Tick(ctx context.Context) (changed int) {
	if !o.ticking.CompareAndSwap(false, true) {
		return 0
	}
	defer o.ticking.Store(false)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("tick panic: %v", r)
		}
	}()

	states := o.src.States()
	seen := make(map[string]struct{}, len(states))
	type change struct {
		st bot.ConnectionState
		d  uint64
	}
	var emit []change

	o.cacheMu.Lock()
	for _, st := range states {
		seen[st.ConnectionID] = struct{}{}
		if st.Status != bot.StatusSpawned {
			continue
		}
		d := digest(st)
		if prev, ok := o.cache[st.ConnectionID]; ok && prev == d {
			continue
		}
		emit = append(emit, change{st, d})
	}
	for id := range o.cache {
		if _, ok := seen[id]; !ok {
			delete(o.cache, id)
		}
	}
	o.cacheMu.Unlock()

	// A digest is only remembered once its state was delivered, so a pass
	// cut short by ctx reports the rest next time.
	for _, c := range emit {
		if ctx.Err() != nil {
			break
		}
		o.sink.StateChanged(c.st)
		o.cacheMu.Lock()
		o.cache[c.st.ConnectionID] = c.d
		o.cacheMu.Unlock()
		changed++
	}
	return changed
}

// Cached reports whether a fingerprint is held for id.
func (o *Observer) Cached(id string) bool {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	_, ok := o.cache[id]
	return ok
}

func (o *Observer) CacheLen() int {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	return len(o.cache)
}
