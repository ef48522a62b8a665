package rpc

import (
	"sync"
	"time"
)

const maxRememberedNonces = 65536

// replayGuard rejects a nonce seen from the same caller within ttl. Entries
// expire in insertion order, so a FIFO is enough to prune them.
type replayGuard struct {
	ttl time.Duration

	mu    sync.Mutex
	seen  map[string]time.Time
	order []nonceEntry
}

type nonceEntry struct {
	key     string
	expires time.Time
}

func newReplayGuard(ttl time.Duration) *replayGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &replayGuard{ttl: ttl, seen: map[string]time.Time{}}
}

func (g *replayGuard) allow(caller, nonce string, now time.Time) bool {
	if g == nil || nonce == "" {
		return true
	}
	key := caller + "|" + nonce

	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked(now)
	if exp, ok := g.seen[key]; ok && exp.After(now) {
		return false
	}
	if len(g.order) >= maxRememberedNonces {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest.key)
	}
	exp := now.Add(g.ttl)
	g.seen[key] = exp
	g.order = append(g.order, nonceEntry{key: key, expires: exp})
	return true
}

func (g *replayGuard) expireLocked(now time.Time) {
	n := 0
	for n < len(g.order) && !g.order[n].expires.After(now) {
		e := g.order[n]
		if g.seen[e.key].Equal(e.expires) {
			delete(g.seen, e.key)
		}
		n++
	}
	if n > 0 {
		g.order = append(g.order[:0:0], g.order[n:]...)
	}
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
