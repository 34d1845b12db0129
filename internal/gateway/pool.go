package gateway

import (
	"context"
	"sync"
)

// task is the unit of work dispatched to a pool worker.
type task[T any] struct {
	payload T
}

// workerPool is a fixed-size goroutine pool with a bounded input queue.
// A full queue rejects submissions instead of blocking the caller.
type workerPool[T any] struct {
	queue   chan task[T]
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
}

// newWorkerPool starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T any](ctx context.Context, n, cap int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		queue:   make(chan task[T], cap),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t.payload)
		case <-ctx.Done():
			return
		}
	}
}

// submit enqueues work without blocking (returns false if full).
func (p *workerPool[T]) submit(t T) bool {
	select {
	case p.queue <- task[T]{payload: t}:
		return true
	default:
		return false
	}
}

// drain closes the queue and waits for all workers to finish.
func (p *workerPool[T]) drain() {
	close(p.queue)
	p.wg.Wait()
}

func (p *workerPool[T]) queueLen() int { return len(p.queue) }
func (p *workerPool[T]) queueCap() int { return cap(p.queue) }
