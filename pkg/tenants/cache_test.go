package tenants

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	gets atomic.Int32
}

func (c *countingStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	c.gets.Add(1)
	return c.Store.GetTenant(ctx, id)
}

func (c *countingStore) GetTenantBySubdomain(ctx context.Context, sub string) (*Tenant, error) {
	c.gets.Add(1)
	return c.Store.GetTenantBySubdomain(ctx, sub)
}

func TestCachedStore_ServesRepeatReads(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: NewMemoryStore()}
	require.NoError(t, backing.CreateTenant(ctx, testTenant("t1", "acme", time.Now())))

	var hits, misses int
	cache := NewCachedStore(backing, 16, time.Minute)
	cache.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}

	for i := 0; i < 3; i++ {
		_, err := cache.GetTenant(ctx, "t1")
		require.NoError(t, err)
	}
	_, err := cache.GetTenantBySubdomain(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, int32(1), backing.gets.Load())
	assert.Equal(t, 1, misses)
	assert.Equal(t, 3, hits)
}

func TestCachedStore_UpdateRefreshes(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	require.NoError(t, backing.CreateTenant(ctx, testTenant("t1", "acme", time.Now())))
	cache := NewCachedStore(backing, 16, time.Minute)

	_, err := cache.GetTenant(ctx, "t1")
	require.NoError(t, err)

	_, err = cache.UpdateTenant(ctx, "t1", Patch{Status: ptr(StatusSuspended)})
	require.NoError(t, err)

	got, err := cache.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
}

func TestCachedStore_DoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	cache := NewCachedStore(backing, 16, time.Minute)

	_, err := cache.GetTenant(ctx, "t1")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	require.NoError(t, backing.CreateTenant(ctx, testTenant("t1", "acme", time.Now())))
	_, err = cache.GetTenant(ctx, "t1")
	assert.NoError(t, err)
}

// gatedStore blocks the first GetTenant after reading from the backing
// store until resume is closed.
type gatedStore struct {
	Store
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func newGatedStore(backing Store) *gatedStore {
	return &gatedStore{Store: backing, read: make(chan struct{}), resume: make(chan struct{})}
}

func (g *gatedStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := g.Store.GetTenant(ctx, id)
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return t, err
	}
	close(g.read)
	select {
	case <-g.resume:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t, err
}

func TestCachedStore_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	require.NoError(t, backing.CreateTenant(ctx, testTenant("t1", "acme", time.Now())))
	gated := newGatedStore(backing)
	cache := NewCachedStore(gated, 16, time.Minute)

	first, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.GetTenant(first, "t1")
		firstErr <- err
	}()
	<-gated.read
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		tenant *Tenant
		err    error
	}
	second := make(chan result, 1)
	go func() {
		got, err := cache.GetTenant(ctx, "t1")
		second <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gated.resume)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "t1", res.tenant.ID)
}

func TestCachedStore_LookupOverlappingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	require.NoError(t, backing.CreateTenant(ctx, testTenant("t1", "acme", time.Now())))
	gated := newGatedStore(backing)
	cache := NewCachedStore(gated, 16, time.Minute)

	done := make(chan *Tenant, 1)
	go func() {
		got, err := cache.GetTenant(ctx, "t1")
		assert.NoError(t, err)
		done <- got
	}()
	<-gated.read

	_, err := cache.UpdateTenant(ctx, "t1", Patch{Status: ptr(StatusSuspended)})
	require.NoError(t, err)
	close(gated.resume)
	assert.Equal(t, StatusActive, (<-done).Status)

	got, err := cache.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
}

func TestCachedStore_DeleteEvicts(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	require.NoError(t, backing.CreateTenant(ctx, testTenant("t1", "acme", time.Now())))
	cache := NewCachedStore(backing, 16, time.Minute)

	_, err := cache.GetTenantBySubdomain(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, cache.DeleteTenant(ctx, "t1"))

	_, err = cache.GetTenantBySubdomain(ctx, "acme")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	_, err = cache.GetTenant(ctx, "t1")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
