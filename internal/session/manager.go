package session

import (
	"sync"

	"market-chat/internal/feed"
)

// Manager keys sessions by user id and owns the single long-lived feed
// subscription, fanning each event out to every active session.
type Manager struct {
	mu       sync.Mutex
	sessions map[int]*Session
	factory  func(userID int) *Session
}

// NewManager constructs a Manager around a session factory.
func NewManager(factory func(userID int) *Session) *Manager {
	return &Manager{
		sessions: map[int]*Session{},
		factory:  factory,
	}
}

// Get returns the user's session, creating it on first use.
func (m *Manager) Get(userID int) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := m.factory(userID)
	m.sessions[userID] = s
	return s
}

// HandleEvent routes one realtime event to every active session; each session
// decides whether the event involves its user.
func (m *Manager) HandleEvent(ev feed.MessageEvent) {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	for _, s := range active {
		s.HandleEvent(ev)
	}
}

// Close shuts every session down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.Close()
	}
}
