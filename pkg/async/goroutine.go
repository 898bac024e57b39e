package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/crmgate/pkg/observability"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is a unit of background work.
type Task func(ctx context.Context) error

// SafeGo runs fn in a goroutine with a timeout and panic recovery. Errors
// and panics are logged with the logger carried by parentCtx.
//
// parentCtx is usually a request context; pass context.WithoutCancel(ctx)
// when the work must outlive the request.
//
//	async.SafeGo(context.WithoutCancel(r.Context()), time.Second, "record usage", func(ctx context.Context) error {
//		meter.RecordAPICall(ctx, tenantID)
//		return nil
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn Task) {
	logger := observability.FromContext(parentCtx).WithField("task", taskName)
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("Background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// WorkerPool runs tasks on a fixed number of goroutines. Each task gets its
// own timeout; task errors and panics are delivered on Errors.
type WorkerPool struct {
	name    string
	timeout time.Duration
	tasks   chan Task
	errs    chan error
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *observability.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewWorkerPool starts workers goroutines reading from a queue of the given
// size. Cancelling ctx makes queued tasks fail with the context error
// instead of running.
func NewWorkerPool(ctx context.Context, workers, queue int, name string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		name:    name,
		timeout: timeout,
		tasks:   make(chan Task, queue),
		errs:    make(chan error, queue+workers),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  observability.FromContext(ctx).WithField("pool", name),
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range p.tasks {
				p.run(task)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
	return p
}

// Submit queues task, blocking while the queue is full.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// TrySubmit queues task without blocking and reports whether it was
// accepted. Rejected tasks are counted in Dropped.
func (p *WorkerPool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped is the number of tasks TrySubmit turned away.
func (p *WorkerPool) Dropped() int64 { return p.dropped.Load() }

// Errors delivers task failures. Errors are dropped when nobody reads them
// and the buffer is full.
func (p *WorkerPool) Errors() <-chan error { return p.errs }

// Close stops accepting tasks and waits up to timeout for queued tasks to
// finish. After the timeout running tasks are cancelled.
func (p *WorkerPool) Close(timeout time.Duration) error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		select {
		case <-p.done:
		case <-time.After(timeout):
			err = fmt.Errorf("%s: shutdown timed out after %v", p.name, timeout)
		}
		p.cancel()
	})
	return err
}

func (p *WorkerPool) run(task Task) {
	if err := p.ctx.Err(); err != nil {
		p.report(err)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("stack", string(debug.Stack())).Errorf("Task panicked: %v", r)
			p.report(observability.MustRecover(r))
		}
	}()

	if err := task(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errs <- err:
	default:
		p.logger.WithError(err).Warn("Error channel full, dropping error")
	}
}

// Batch runs fn over items with the given concurrency and returns every
// error encountered.
//
//	errs := async.Batch(ctx, tenantIDs, 4, "usage report", 5*time.Second, func(ctx context.Context, id string) error {
//		return report(ctx, id)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, len(items), taskName, timeout)

	var errs []error
	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error { return fn(ctx, item) }); err != nil {
			errs = append(errs, err)
			break
		}
	}

	// the error buffer holds one slot per item, so waiting cannot deadlock
	<-pool.closeAndWait()
	for {
		select {
		case err := <-pool.errs:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

func (p *WorkerPool) closeAndWait() <-chan struct{} {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	go func() {
		<-p.done
		p.cancel()
	}()
	return p.done
}
