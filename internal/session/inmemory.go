package session

import (
	"context"
	"sync"
)

// InMemoryStore keeps sessions in process memory for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

func (m *InMemoryStore) InsertSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s
	m.sessions[s.ID] = &c
	m.order = append(m.order, s.ID)
	return nil
}

func (m *InMemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// ListSessions returns sessions by CreatedAt descending; sessions created at
// the same instant keep reverse insertion order.
func (m *InMemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.sessions[m.order[i]])
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *InMemoryStore) SetSessionStatus(_ context.Context, id string, status Status) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.Status = status
	return *s, nil
}

func (m *InMemoryStore) Close() error { return nil }
