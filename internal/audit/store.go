package audit

import (
	"context"
	"sync"
)

// Store is an append-only sink for events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// MemoryStore keeps the most recent events in a bounded ring. It backs tests
// and the admin API's recent-events view.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	next     int
	full     bool
	capacity int
}

// NewMemoryStore creates a ring holding up to capacity events.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{events: make([]Event, capacity), capacity: capacity}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = event
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. limit <= 0 returns all.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = s.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.capacity) % s.capacity
		out = append(out, s.events[idx])
	}
	return out, nil
}

// ListByAction returns stored events with the given action, oldest first.
func (s *MemoryStore) ListByAction(ctx context.Context, action string) []Event {
	all, _ := s.Recent(ctx, 0)
	var out []Event
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Action == action {
			out = append(out, all[i])
		}
	}
	return out
}

// Multi fans an event out to several stores and returns the first error
// after trying all of them.
type Multi []Store

func (m Multi) Append(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
