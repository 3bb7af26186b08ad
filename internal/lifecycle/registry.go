package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/huiputin/routemap/pkg/core"
)

type entry struct {
	visit    *Visit
	lastSeen time.Time
}

// Registry keeps the open visits by id. Every Get counts as use of the visit.
type Registry struct {
	mu     sync.Mutex
	visits map[string]*entry
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{visits: make(map[string]*entry), now: time.Now}
}

// Add registers v under its id.
func (r *Registry) Add(v *Visit) {
	r.mu.Lock()
	r.visits[v.ID()] = &entry{visit: v, lastSeen: r.now()}
	r.mu.Unlock()
}

// Get returns the visit with id and marks it as used.
func (r *Registry) Get(id string) (*Visit, error) {
	r.mu.Lock()
	e, ok := r.visits[id]
	if ok {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: visit %s", core.ErrNotFound, id)
	}
	return e.visit, nil
}

// Remove closes and forgets the visit. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.visits[id]
	delete(r.visits, id)
	r.mu.Unlock()
	if ok {
		e.visit.Close()
	}
}

// Prune forgets visits that closed themselves and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.visits {
		if e.visit.Closed() {
			delete(r.visits, id)
			n++
		}
	}
	return n
}

// Expire closes and forgets visits that were not used for longer than ttl and
// returns how many were removed. A ttl <= 0 expires nothing.
func (r *Registry) Expire(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var idle []*Visit
	for id, e := range r.visits {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.visit)
			delete(r.visits, id)
		}
	}
	r.mu.Unlock()

	// Close releases route subscriptions, keep it outside the lock.
	for _, v := range idle {
		v.Close()
	}
	return len(idle)
}

// Len returns the number of registered visits.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visits)
}

// CloseAll closes every visit and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	visits := r.visits
	r.visits = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range visits {
		e.visit.Close()
	}
}
