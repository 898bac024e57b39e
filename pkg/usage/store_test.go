package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC)

func newRedisStore(t *testing.T) (*RedisCounterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(testNow)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCounterStore(client), mr
}

func counterStores(t *testing.T) map[string]CounterStore {
	redisStore, _ := newRedisStore(t)
	return map[string]CounterStore{
		"memory": NewMemoryCounterStore(),
		"redis":  redisStore,
	}
}

func TestCounterStores(t *testing.T) {
	ctx := context.Background()
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			key := KeyFor("t1", SMS, testNow)

			v, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Zero(t, v)

			v, err = store.Increment(ctx, key, 3)
			require.NoError(t, err)
			assert.Equal(t, int64(3), v)

			v, ok, err := store.CheckAndIncrement(ctx, key, 2, Limited(5))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(5), v)

			v, ok, err = store.CheckAndIncrement(ctx, key, 1, Limited(5))
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, int64(5), v)

			v, ok, err = store.CheckAndIncrement(ctx, key, 1000, Unlimited())
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(1005), v)

			gauge := KeyFor("t1", Storage, testNow)
			require.NoError(t, store.Set(ctx, gauge, 4096))
			v, err = store.Get(ctx, gauge)
			require.NoError(t, err)
			assert.Equal(t, int64(4096), v)

			// other tenants are isolated
			v, err = store.Get(ctx, KeyFor("t2", SMS, testNow))
			require.NoError(t, err)
			assert.Zero(t, v)
		})
	}
}

func TestCounterStores_Purge(t *testing.T) {
	ctx := context.Background()
	lastMonth := testNow.AddDate(0, -1, 0)

	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Increment(ctx, KeyFor("t1", SMS, lastMonth), 7)
			require.NoError(t, err)
			_, err = store.Increment(ctx, KeyFor("t1", Emails, lastMonth), 2)
			require.NoError(t, err)
			_, err = store.Increment(ctx, KeyFor("t1", SMS, testNow), 1)
			require.NoError(t, err)
			require.NoError(t, store.Set(ctx, KeyFor("t1", Storage, lastMonth), 512))

			n, err := store.Purge(ctx, PeriodOf(testNow))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			v, _ := store.Get(ctx, KeyFor("t1", SMS, lastMonth))
			assert.Zero(t, v)
			v, _ = store.Get(ctx, KeyFor("t1", SMS, testNow))
			assert.Equal(t, int64(1), v)
			v, _ = store.Get(ctx, KeyFor("t1", Storage, testNow))
			assert.Equal(t, int64(512), v)
		})
	}
}

func TestCounterStores_ConcurrentCheckAndIncrement(t *testing.T) {
	ctx := context.Background()
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			key := KeyFor("t1", Emails, testNow)

			var wg sync.WaitGroup
			var mu sync.Mutex
			admitted := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, ok, err := store.CheckAndIncrement(ctx, key, 1, Limited(20))
					if err == nil && ok {
						mu.Lock()
						admitted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 20, admitted)
			v, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(20), v)
		})
	}
}

func TestRedisCounterStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	key := KeyFor("t1", APICalls, testNow)
	_, err := store.Increment(ctx, key, 1)
	require.NoError(t, err)

	want := PeriodOf(testNow).End().Add(CounterRetention).Sub(testNow)
	assert.Equal(t, want, mr.TTL(counterKeyPrefix+key.String()))

	require.NoError(t, store.Set(ctx, KeyFor("t1", Storage, testNow), 10))
	assert.Zero(t, mr.TTL(counterKeyPrefix+"t1:storage"))

	mr.FastForward(want + time.Second)
	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, v)
}
