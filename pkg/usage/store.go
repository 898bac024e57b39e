package usage

import (
	"context"
	"sync"
)

// CounterStore holds usage counters. Implementations must be safe for
// concurrent use.
type CounterStore interface {
	// Get returns the counter value, zero if it does not exist.
	Get(ctx context.Context, key Key) (int64, error)
	// Increment adds delta and returns the new value.
	Increment(ctx context.Context, key Key, delta int64) (int64, error)
	// CheckAndIncrement adds delta only if the result stays within limit,
	// as a single atomic step. It returns the value after the call and
	// whether the increment was applied.
	CheckAndIncrement(ctx context.Context, key Key, delta int64, limit Limit) (int64, bool, error)
	// Set overwrites the counter; used for gauges.
	Set(ctx context.Context, key Key, value int64) error
	// Purge drops every periodic counter older than before and returns
	// how many were removed. Gauges are kept.
	Purge(ctx context.Context, before Period) (int, error)
}

// MemoryCounterStore keeps counters in process memory. Counters do not
// survive restarts and are not shared between instances.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[Key]int64
}

// NewMemoryCounterStore creates an empty store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[Key]int64)}
}

func (s *MemoryCounterStore) Get(_ context.Context, key Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryCounterStore) Increment(_ context.Context, key Key, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += delta
	return s.counters[key], nil
}

func (s *MemoryCounterStore) CheckAndIncrement(_ context.Context, key Key, delta int64, limit Limit) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.counters[key]
	if !limit.Allows(current, delta) {
		return current, false, nil
	}
	s.counters[key] = current + delta
	return s.counters[key], true, nil
}

func (s *MemoryCounterStore) Set(_ context.Context, key Key, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = value
	return nil
}

func (s *MemoryCounterStore) Purge(_ context.Context, before Period) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.counters {
		if k.Period.IsZero() || !k.Period.Before(before) {
			continue
		}
		delete(s.counters, k)
		n++
	}
	return n, nil
}

var _ CounterStore = (*MemoryCounterStore)(nil)
