package answers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-process answer log for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Answer
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Answer)}
}

func (s *InMemoryStore) Append(_ context.Context, a Answer) (Answer, error) {
	Normalize(&a)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[a.SessionID] = append(s.records[a.SessionID], a)
	return a, nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string) ([]Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionID]
	out := make([]Answer, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// Normalize fills the store-assigned fields of a new record.
func Normalize(a *Answer) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}
	a.SubmittedAt = a.SubmittedAt.UTC().Truncate(time.Microsecond)
}
