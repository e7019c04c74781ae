package memory

import (
	"context"
	"sync"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store"
)

// InvocationStore is an in-memory append-only log of invocations.
// Used by tests.
type InvocationStore struct {
	mu      sync.Mutex
	records []store.InvocationRecord
}

func NewInvocationStore() *InvocationStore {
	return &InvocationStore{}
}

func (s *InvocationStore) RecordInvocation(_ context.Context, rec store.InvocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InvocationStore) Recent(_ context.Context, limit int) ([]store.InvocationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]store.InvocationRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Records returns a copy of all recorded invocations in insertion order.
// Test-only helper.
func (s *InvocationStore) Records() []store.InvocationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.InvocationRecord, len(s.records))
	copy(out, s.records)
	return out
}
