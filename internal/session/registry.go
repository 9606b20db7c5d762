package session

import (
	"sort"
	"sync"
	"time"
)

// Registry keeps every live session in process memory
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers a session
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns the session with the given id
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session and notifies its subscribers
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Idle returns sessions without activity since before cutoff that are not
// waiting on the gateway, oldest first
func (r *Registry) Idle(cutoff time.Time) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []*Session
	for _, s := range r.sessions {
		if s.LastActivity().Before(cutoff) && !s.Busy() {
			idle = append(idle, s)
		}
	}

	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastActivity().Before(idle[j].LastActivity())
	})
	return idle
}
