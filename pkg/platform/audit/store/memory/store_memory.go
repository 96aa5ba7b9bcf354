package memory

import (
	"context"
	"sync"

	audit "admissions/pkg/platform/audit"
)

type entityKey struct {
	entityType string
	entityID   string
}

// InMemoryStore keeps entries in process; used by tests and when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	entries  []audit.Entry
	byEntity map[entityKey][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[entityKey][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entry.EntityType, entry.EntityID}
	s.byEntity[key] = append(s.byEntity[key], len(s.entries))
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byEntity[entityKey{entityType, entityID}]
	out := make([]audit.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// ListAll returns every entry in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry(nil), s.entries...), nil
}
