package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps events in process. For tests and single-node setups
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Log(_ context.Context, event *Event) error {
	cp := *event
	m.mu.Lock()
	m.events = append(m.events, &cp)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Search(_ context.Context, filter SearchFilter) ([]*Event, error) {
	filter, err := filter.normalize()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var out []*Event
	for _, e := range m.events {
		if matches(e, filter) {
			cp := *e
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed, nil
}

func matches(e *Event, f SearchFilter) bool {
	switch {
	case e.TenantID != f.TenantID:
		return false
	case f.EventType != "" && e.EventType != f.EventType:
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && !e.Timestamp.Before(f.Until):
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
