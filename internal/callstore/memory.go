package callstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and deployments without a
// database.
type MemoryStore struct {
	mu     sync.Mutex
	byCall map[string][]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCall: make(map[string][]Record)}
}

func (s *MemoryStore) RecordEvent(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCall[rec.CallID] = append(s.byCall[rec.CallID], rec)
	return nil
}

func (s *MemoryStore) EventsForCall(_ context.Context, callID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.byCall[callID]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (s *MemoryStore) Close() {}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)
