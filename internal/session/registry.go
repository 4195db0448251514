package session

import (
	"sort"
	"sync"
)

// Registry is the set of live sessions shared by the HTTP handlers and the
// streaming connections. Lookups and removals are atomic, so two callers
// racing to end the same session observe exactly one winner.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new active session under id and returns it.
func (r *Registry) Create(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := New(id)
	r.sessions[id] = s
	return s
}

// Get returns the session registered under id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetOrCreate returns the session registered under id, creating it first if
// none exists. The second result reports whether a session was created.
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := New(id)
	r.sessions[id] = s
	return s, true
}

// Remove unregisters and returns the session under id. The session itself
// stays usable by holders of the pointer; only the registry entry goes away.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// All returns the registered sessions ordered by start time.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime().Before(out[j].StartTime())
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
