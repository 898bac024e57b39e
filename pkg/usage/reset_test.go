package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/observability"
)

func TestResetter_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCounterStore()
	lastMonth := testNow.AddDate(0, -1, 0)

	_, err := store.Increment(ctx, KeyFor("t1", SMS, lastMonth), 100)
	require.NoError(t, err)
	_, err = store.Increment(ctx, KeyFor("t1", SMS, testNow), 3)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyFor("t1", Storage, testNow), 2048))

	r := NewResetter(store, observability.NewNopLogger()).WithClock(func() time.Time { return testNow })
	var reported []int
	r.OnReset = func(purged int) { reported = append(reported, purged) }
	n, err := r.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{1}, reported)

	v, _ := store.Get(ctx, KeyFor("t1", SMS, testNow))
	assert.Equal(t, int64(3), v)
	v, _ = store.Get(ctx, KeyFor("t1", Storage, testNow))
	assert.Equal(t, int64(2048), v)
}

func TestResetter_Schedule(t *testing.T) {
	c := NewScheduler()
	r := NewResetter(NewMemoryCounterStore(), nil)

	id, err := r.Schedule(c)
	require.NoError(t, err)

	next := c.Entry(id).Schedule.Next(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), next.UTC())

	next = c.Entry(id).Schedule.Next(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), next.UTC())
}
