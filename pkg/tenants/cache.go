package tenants

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedStore fronts a Store with a short-lived LRU for tenant reads, which
// run on every request. Seat counts and writes always go to the backing store.
type CachedStore struct {
	Store
	byID        *lru.LRU[string, *Tenant]
	bySubdomain *lru.LRU[string, string]
	group       singleflight.Group
	timeout     time.Duration

	// writes counts tenant writes. A lookup that overlapped a write does
	// not populate the cache.
	mu     sync.Mutex
	writes uint64

	// OnLookup, if set, is told whether each read was served from cache.
	OnLookup func(hit bool)
}

// NewCachedStore wraps store with a cache of up to size tenants held for ttl.
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedStore{
		Store:       store,
		byID:        lru.NewLRU[string, *Tenant](size, nil, ttl),
		bySubdomain: lru.NewLRU[string, string](size, nil, ttl),
		timeout:     DefaultLookupTimeout,
	}
}

func (c *CachedStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	if t, ok := c.byID.Get(id); ok {
		c.observe(true)
		return t.Clone(), nil
	}
	c.observe(false)

	return c.load(ctx, "id:"+id, func(ctx context.Context) (*Tenant, error) {
		return c.Store.GetTenant(ctx, id)
	})
}

func (c *CachedStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	if id, ok := c.bySubdomain.Get(subdomain); ok {
		if t, ok := c.byID.Get(id); ok {
			c.observe(true)
			return t.Clone(), nil
		}
	}
	c.observe(false)

	return c.load(ctx, "sub:"+subdomain, func(ctx context.Context) (*Tenant, error) {
		return c.Store.GetTenantBySubdomain(ctx, subdomain)
	})
}

// load collapses concurrent misses for key into one backing read. The read
// runs detached from any single caller so one caller's cancellation does not
// fail the others; each caller still stops waiting when its own ctx ends.
func (c *CachedStore) load(ctx context.Context, key string, fetch func(context.Context) (*Tenant, error)) (*Tenant, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		seen := c.generation()

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		t, err := fetch(lctx)
		if err != nil {
			return nil, err
		}
		c.putIfUnchanged(t, seen)
		return t, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Tenant).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CachedStore) UpdateTenant(ctx context.Context, id string, patch Patch) (*Tenant, error) {
	c.Invalidate(id)
	t, err := c.Store.UpdateTenant(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.writes++
	c.put(t)
	c.mu.Unlock()
	return t.Clone(), nil
}

func (c *CachedStore) DeleteTenant(ctx context.Context, id string) error {
	if t, ok := c.byID.Peek(id); ok {
		c.bySubdomain.Remove(t.Subdomain)
	}
	c.Invalidate(id)
	err := c.Store.DeleteTenant(ctx, id)
	c.Invalidate(id)
	return err
}

// Invalidate drops a tenant from the cache.
func (c *CachedStore) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.byID.Remove(id)
}

func (c *CachedStore) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *CachedStore) putIfUnchanged(t *Tenant, seen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes == seen {
		c.put(t)
	}
}

func (c *CachedStore) put(t *Tenant) {
	c.byID.Add(t.ID, t.Clone())
	c.bySubdomain.Add(t.Subdomain, t.ID)
}

func (c *CachedStore) observe(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}

var _ Store = (*CachedStore)(nil)
