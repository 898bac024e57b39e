package async

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/observability"
)

// syncBuffer guards a bytes.Buffer written from background goroutines.
type syncBuffer struct {
	ch chan struct{}
	bytes.Buffer
}

func newSyncBuffer() *syncBuffer {
	b := &syncBuffer{ch: make(chan struct{}, 1)}
	b.ch <- struct{}{}
	return b
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	<-b.ch
	defer func() { b.ch <- struct{}{} }()
	return b.Buffer.Write(p)
}

func (b *syncBuffer) String() string {
	<-b.ch
	defer func() { b.ch <- struct{}{} }()
	return b.Buffer.String()
}

func TestSafeGo_Success(t *testing.T) {
	var executed atomic.Bool

	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	assert.Eventually(t, executed.Load, time.Second, 10*time.Millisecond)
}

func TestSafeGo_LogsErrorsAndPanics(t *testing.T) {
	buf := newSyncBuffer()
	ctx := observability.WithLogger(context.Background(), observability.NewLogger(observability.DebugLevel, buf))

	SafeGo(ctx, time.Second, "failing task", func(ctx context.Context) error {
		return errors.New("smtp unavailable")
	})
	SafeGo(ctx, time.Second, "panicking task", func(ctx context.Context) error {
		panic("boom")
	})

	assert.Eventually(t, func() bool {
		out := buf.String()
		return bytes.Contains([]byte(out), []byte("smtp unavailable")) &&
			bytes.Contains([]byte(out), []byte("Background task panicked"))
	}, time.Second, 10*time.Millisecond)
}

func TestSafeGo_Timeout(t *testing.T) {
	var cancelled atomic.Bool

	SafeGo(context.Background(), 20*time.Millisecond, "slow task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			cancelled.Store(true)
			return ctx.Err()
		}
	})

	assert.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond)
}

func TestSafeGo_OutlivesRequest(t *testing.T) {
	reqCtx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool

	SafeGo(context.WithoutCancel(reqCtx), time.Second, "record", func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		if ctx.Err() == nil {
			finished.Store(true)
		}
		return nil
	})
	cancel()

	assert.Eventually(t, finished.Load, time.Second, 10*time.Millisecond)
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, 10, "test pool", time.Second)

	var executed atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			executed.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(5), executed.Load())

	assert.ErrorIs(t, pool.Submit(func(context.Context) error { return nil }), ErrPoolClosed)
	assert.False(t, pool.TrySubmit(func(context.Context) error { return nil }))
	assert.Equal(t, int64(1), pool.Dropped())
}

func TestWorkerPool_Errors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 4, "test pool", time.Second)

	require.NoError(t, pool.Submit(func(context.Context) error { return errors.New("first") }))
	require.NoError(t, pool.Submit(func(context.Context) error { panic("second") }))
	require.NoError(t, pool.Close(time.Second))

	var msgs []string
	for len(msgs) < 2 {
		select {
		case err := <-pool.Errors():
			msgs = append(msgs, err.Error())
		case <-time.After(time.Second):
			t.Fatalf("expected two errors, got %v", msgs)
		}
	}
	assert.ElementsMatch(t, []string{"first", "panic: second"}, msgs)
}

func TestWorkerPool_TaskTimeout(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 1, "test pool", 20*time.Millisecond)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	require.NoError(t, pool.Close(time.Second))

	err := <-pool.Errors()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_TrySubmitFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewWorkerPool(context.Background(), 1, 1, "test pool", time.Second)
	defer pool.Close(time.Second)
	defer close(block)

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started

	assert.True(t, pool.TrySubmit(func(context.Context) error { return nil }))
	assert.False(t, pool.TrySubmit(func(context.Context) error { return nil }))
	assert.Equal(t, int64(1), pool.Dropped())
}

func TestBatch(t *testing.T) {
	var executed atomic.Int32

	errs := Batch(context.Background(), []int{1, 2, 3, 4, 5}, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		if item%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	assert.Equal(t, int32(5), executed.Load())
	assert.Len(t, errs, 2)
}

func TestBatch_Empty(t *testing.T) {
	errs := Batch(context.Background(), []string(nil), 2, "empty", time.Second, func(context.Context, string) error {
		return errors.New("never")
	})
	assert.Empty(t, errs)
}

func TestBatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var executed atomic.Int32

	errs := Batch(ctx, []int{1, 2, 3, 4, 5}, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		return nil
	})

	assert.Zero(t, executed.Load())
	assert.NotEmpty(t, errs)
}
