package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Manager hands out one Session per browser session ID. Sessions live in
// memory for the life of the process; there is no cross-session sharing.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func() *Session
}

// NewManager builds a registry that constructs sessions with factory.
func NewManager(factory func() *Session) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// NewID mints a fresh session identifier.
func (m *Manager) NewID() string {
	return uuid.NewString()
}

// Get returns the session for id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = m.factory()
		m.sessions[id] = s
	}
	return s
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
