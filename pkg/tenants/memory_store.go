package tenants

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant
	bySubdomain map[string]string
	members     map[string]map[string]struct{}
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*Tenant),
		bySubdomain: make(map[string]string),
		members:     make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

func (m *MemoryStore) CreateTenant(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bySubdomain[t.Subdomain]; ok {
		return ErrSubdomainTaken
	}
	m.tenants[t.ID] = t.Clone()
	m.bySubdomain[t.Subdomain] = t.ID
	m.members[t.ID] = make(map[string]struct{})
	return nil
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	m.mu.RLock()
	id, ok := m.bySubdomain[subdomain]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrTenantNotFound
	}
	return m.GetTenant(ctx, id)
}

func (m *MemoryStore) GetTenantUserCount(_ context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tenants[tenantID]; !ok {
		return 0, ErrTenantNotFound
	}
	return len(m.members[tenantID]), nil
}

func (m *MemoryStore) UpdateTenant(_ context.Context, id string, patch Patch) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	patch.Apply(t)
	t.UpdatedAt = m.now().UTC()
	return t.Clone(), nil
}

func (m *MemoryStore) AddUser(_ context.Context, tenantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.members[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	if _, exists := users[userID]; exists {
		return ErrUserExists
	}
	users[userID] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveUser(_ context.Context, tenantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.members[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	if _, exists := users[userID]; !exists {
		return ErrUserNotFound
	}
	delete(users, userID)
	return nil
}

func (m *MemoryStore) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	delete(m.bySubdomain, t.Subdomain)
	delete(m.members, id)
	delete(m.tenants, id)
	return nil
}

func (m *MemoryStore) ListExpiredTrials(_ context.Context, before time.Time) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Tenant
	for _, t := range m.tenants {
		if t.SubscriptionStatus == SubscriptionTrial && t.TrialEndsAt.Before(before) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialEndsAt.Before(out[j].TrialEndsAt) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
