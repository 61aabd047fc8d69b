package process

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BoundedRunner enforces the global process-execution ceiling: no more than
// the configured parallelism count of executions run concurrently,
// system-wide, no matter how many node computations request one. Waiters
// queue in acquisition order, so no request starves while slots keep going
// to others.
type BoundedRunner struct {
	inner    Runner
	sem      *semaphore.Weighted
	bound    int
	strategy string
	inflight atomic.Int64
}

// NewBoundedRunner wraps inner behind a bound of parallelism slots.
func NewBoundedRunner(inner Runner, parallelism int, strategy string) (*BoundedRunner, error) {
	if parallelism <= 0 {
		return nil, fmt.Errorf("parallelism must be positive, got %d", parallelism)
	}
	return &BoundedRunner{
		inner:    inner,
		sem:      semaphore.NewWeighted(int64(parallelism)),
		bound:    parallelism,
		strategy: strategy,
	}, nil
}

// Bound returns the configured parallelism.
func (b *BoundedRunner) Bound() int {
	return b.bound
}

// Strategy returns the wrapped strategy's label.
func (b *BoundedRunner) Strategy() string {
	return b.strategy
}

// InFlight returns the number of executions currently holding a slot.
func (b *BoundedRunner) InFlight() int {
	return int(b.inflight.Load())
}

// Run waits for an execution slot, then delegates. Cancellation while
// queued returns without consuming a slot.
func (b *BoundedRunner) Run(ctx context.Context, req Request) (Result, error) {
	waitStart := time.Now()
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("waiting for execution slot: %w", err)
	}
	defer b.sem.Release(1)
	queueWait.Observe(time.Since(waitStart).Seconds())

	b.inflight.Add(1)
	inflightExecutions.Inc()
	defer func() {
		inflightExecutions.Dec()
		b.inflight.Add(-1)
	}()
	return b.inner.Run(ctx, req)
}
