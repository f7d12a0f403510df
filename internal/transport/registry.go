package transport

import "sync"

// Registry holds the active sinks keyed by canonical channel name.
// It is safe for concurrent use; sinks may be registered while the
// forwarder is already running (config hot reload).
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewRegistry() *Registry {
	return &Registry{sinks: map[string]Sink{}}
}

func (r *Registry) Register(s Sink) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.sinks[s.Channel()] = s
	r.mu.Unlock()
}

func (r *Registry) Unregister(channel string) {
	r.mu.Lock()
	delete(r.sinks, channel)
	r.mu.Unlock()
}

func (r *Registry) Sink(channel string) (Sink, bool) {
	r.mu.RLock()
	s, ok := r.sinks[channel]
	r.mu.RUnlock()
	return s, ok
}

// Editor returns the sink for channel if it supports in-place edits.
func (r *Registry) Editor(channel string) (Editor, bool) {
	s, ok := r.Sink(channel)
	if !ok {
		return nil, false
	}
	e, ok := s.(Editor)
	return e, ok
}
