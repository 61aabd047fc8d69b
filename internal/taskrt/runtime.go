// Package taskrt provides the asynchronous task runtime shared by every
// concurrently running node computation. Spawn schedules fire-and-forget work
// from any goroutine; BlockOn runs one unit of work to completion for a
// top-level caller. Both capture the caller's diagnostic-logging destination
// at scheduling time and re-establish it inside the scheduled work.
package taskrt

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/seantiz/anvil/internal/logging"
)

// ErrClosed is returned or logged when work is scheduled after Close.
var ErrClosed = errors.New("task runtime is closed")

// Runtime runs units of asynchronous work on their own goroutines.
//
// Access discipline: Spawn needs only shared access and many Spawns may
// proceed concurrently; BlockOn takes exclusive access, so blocking waits
// serialize with each other (never with Spawns — a blocked-on unit of work
// is allowed to Spawn sub-work). Calling BlockOn from inside a unit of work
// running on the same runtime is a misuse that can deadlock the caller; it
// is documented, not guarded.
type Runtime struct {
	logger *slog.Logger

	// stateMu guards closed and admission of new work; Spawn holds it
	// shared, Close exclusively.
	stateMu sync.RWMutex
	closed  bool

	// blockMu serializes blocking waits.
	blockMu sync.Mutex

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New starts a runtime. The logger receives runtime-level diagnostics only;
// work units log through their captured destination.
func New(logger *slog.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Spawn schedules fn without waiting for it. The caller's current logging
// destination is captured now and attached to the context fn receives, so
// daemon-origin callers produce daemon-attributed output no matter which
// goroutine runs fn. Safe to call from any goroutine, including from inside
// another unit of work.
func (r *Runtime) Spawn(fn func(ctx context.Context)) {
	dest := logging.GetDestination()

	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.closed {
		r.logger.Warn("spawn after close dropped")
		return
	}
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		fn(logging.WithDestination(r.baseCtx, dest))
	}()
}

// BlockOn runs fn to completion on the calling goroutine and returns its own
// outcome, unwrapped. The caller's logging destination is captured before the
// wait begins and attached to fn's context. Blocking waits are exclusive:
// two concurrent BlockOn calls run one after the other.
func (r *Runtime) BlockOn(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	dest := logging.GetDestination()

	r.stateMu.RLock()
	closed := r.closed
	r.stateMu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	r.blockMu.Lock()
	defer r.blockMu.Unlock()
	return fn(logging.WithDestination(ctx, dest))
}

// Close stops admission of new work, cancels the context of all spawned
// work, and waits for it to finish.
func (r *Runtime) Close() {
	r.stateMu.Lock()
	if r.closed {
		r.stateMu.Unlock()
		return
	}
	r.closed = true
	r.stateMu.Unlock()

	r.cancel()
	r.wg.Wait()
}
