package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetwatch/fleetwatch/internal/metrics"
)

// WorkerPool runs tasks on a fixed set of workers fed by a bounded queue.
// When the queue is full and no worker can pick the task up immediately,
// Submit runs the task on the calling goroutine instead of dropping it:
// under overload the producer slows down, but no task is ever lost.
type WorkerPool struct {
	tasks   chan func()
	workers int
	wg      sync.WaitGroup

	mu       sync.RWMutex
	draining bool
}

// NewWorkerPool starts workers goroutines behind a queue of queueCapacity.
func NewWorkerPool(workers, queueCapacity int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueCapacity < 0 {
		queueCapacity = 0
	}

	p := &WorkerPool{
		tasks:   make(chan func(), queueCapacity),
		workers: workers,
	}
	metrics.QueueCapacity.Set(float64(queueCapacity))

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		metrics.QueueDepth.Dec()
		task()
	}
}

// Submit hands a task to the pool. It never blocks on a full queue and
// never drops: a task that cannot be queued runs synchronously on the
// caller. Tasks submitted after Drain has begun also run on the caller.
func (p *WorkerPool) Submit(task func()) {
	if task == nil {
		return
	}

	p.mu.RLock()
	if p.draining {
		p.mu.RUnlock()
		task()
		return
	}

	select {
	case p.tasks <- task:
		metrics.QueueDepth.Inc()
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		metrics.CallerRunsTotal.Inc()
		task()
	}
}

// QueueDepth returns the number of queued tasks not yet picked up.
func (p *WorkerPool) QueueDepth() int {
	return len(p.tasks)
}

// Drain stops accepting queued work and waits for all queued and
// in-flight tasks to finish, up to the context deadline. It returns an
// error when the grace period expires first.
func (p *WorkerPool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil
	}
	p.draining = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain aborted: %w", ctx.Err())
	}
}
