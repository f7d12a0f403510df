// Package eventbus fans approval lifecycle events out to in-process
// observers (operational logging, future bridges) without coupling them to
// the forwarder.
package eventbus

import (
	"sync"
	"time"
)

// Event is one approval lifecycle signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	// Type is the lifecycle kind, e.g. "approval.requested".
	Type string

	// RequestID is the approval request the event is about.
	RequestID string

	Time time.Time
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no background goroutines.
func New() Bus {
	return &memBus{}
}

type subscriber struct {
	ch     chan Event
	closed bool
}

type memBus struct {
	mu   sync.Mutex
	subs []*subscriber
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.closed {
			continue
		}
		// Never block the publisher on a full subscriber.
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			s.closed = true
			for i, cur := range b.subs {
				if cur == s {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}
