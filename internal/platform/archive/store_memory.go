package archive

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory, bounded to the most recent
// max entries. It is intended for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	max     int
}

// NewMemoryStore creates a MemoryStore. max <= 0 means unbounded.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.entries = append(s.entries, &cp)
	if s.max > 0 && len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.entries)
	var page []*Entry
	for i := total - 1 - offset; i >= 0 && len(page) < limit; i-- {
		cp := *s.entries[i]
		page = append(page, &cp)
	}
	return page, total, nil
}
