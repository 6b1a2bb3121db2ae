package services

import (
	"context"
	"sync"
)

// Pool runs independent entity harvests concurrently with a fixed worker
// count. Workers drain a shared index queue; the first error cancels the
// remaining work. Sink and checkpoint serialization is the Harvester's
// responsibility, not the pool's.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker bound (minimum 1).
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run invokes fn for every index in [0, n). It blocks until all work
// finishes or a worker returns an error, and returns the first error.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	workers := p.workers
	if workers > n {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if ctx.Err() != nil {
					return
				}
				if err := fn(ctx, i); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case queue <- i:
		case <-ctx.Done():
			i = n // stop feeding
		}
	}
	close(queue)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
