// Package dedupe guards against re-ingesting the same BridgeEvent twice
// across a gap-triggered resync: a bounded
// in-memory ring for the common case, backed by a SQLite table so the
// window survives a process restart.
package dedupe

import (
	"container/list"
	"sync"
)

// Ring is a bounded set of recently seen ids. It answers "have we seen
// this one already" in O(1) and evicts the oldest id once full, the same
// shape as a per-session SSE replay buffer but keyed globally by eventId
// rather than sharded per session.
type Ring struct {
	mu      sync.Mutex
	order   *list.List
	index   map[string]*list.Element
	maxSize int
}

// NewRing creates a Ring holding at most maxSize ids.
func NewRing(maxSize int) *Ring {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Ring{
		order:   list.New(),
		index:   make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Seen reports whether id has been recorded, without recording it.
func (r *Ring) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

// Remember records id, evicting the oldest entry if the ring is full.
// Returns false if id was already present (a no-op in that case).
func (r *Ring) Remember(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; ok {
		return false
	}
	elem := r.order.PushBack(id)
	r.index[id] = elem
	for r.order.Len() > r.maxSize {
		oldest := r.order.Front()
		if oldest == nil {
			break
		}
		r.order.Remove(oldest)
		delete(r.index, oldest.Value.(string))
	}
	return true
}

// Len returns the number of ids currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
