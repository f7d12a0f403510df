package forward

import (
	"sync"
	"time"
)

// registry is the process-wide map of in-flight approvals. Removal is the
// single serialization point between resolution and expiry: take() is an
// atomic lookup-then-delete, so exactly one caller wins no matter how the
// timer and the resolved event race.
type registry struct {
	mu      sync.Mutex
	entries map[string]*pending
}

func newRegistry() *registry {
	return &registry{entries: map[string]*pending{}}
}

// put inserts the entry unless the id is already pending.
func (r *registry) put(id string, e *pending) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = e
	return true
}

// take removes and returns the entry. The second caller for an id gets
// (nil, false) and must treat the event as a no-op.
func (r *registry) take(id string) (*pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	return e, true
}

// has reports whether the entry is still pending. Used as the "still
// relevant" guard during the initial fan-out.
func (r *registry) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// arm stores the expiry timer on an entry that is still pending.
func (r *registry) arm(id string, t *time.Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.timer = t
	return true
}

// appendRef records an editable message handle produced by the initial
// delivery. No-op if the entry already reached a terminal state.
func (r *registry) appendRef(id string, ref EditableRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.refs = append(e.refs, ref)
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// stopAll cancels every armed timer and clears the registry without firing
// any callbacks. Timer cancellation here is advisory; a timer that already
// fired loses the take() race and no-ops.
func (r *registry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(r.entries, id)
	}
}
