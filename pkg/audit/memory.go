package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory. It is meant for tests and
// single-process tools.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends events.
func (s *MemoryStorage) Store(ctx context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Query returns matching events, oldest first.
func (s *MemoryStorage) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range s.events {
		if !criteria.Matches(e) {
			continue
		}
		out = append(out, e)
		if criteria.Limit > 0 && len(out) == criteria.Limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of everything stored.
func (s *MemoryStorage) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// Truncate drops events after index n. Used by transactional stores to roll back.
func (s *MemoryStorage) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.events) {
		s.events = s.events[:n]
	}
}

// Len returns the number of stored events.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
