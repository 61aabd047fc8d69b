// Package handles queues cross-boundary resource handles for deferred
// release. Owners of external handles cannot always release them on the
// goroutine that drops the last reference, so they enqueue a release
// callback here; MaybeDrop drains the queue opportunistically from
// housekeeping points on the hot path.
package handles

import "sync"

var (
	mu      sync.Mutex
	pending []func()
)

// Defer enqueues a release callback to run at the next MaybeDrop.
func Defer(release func()) {
	mu.Lock()
	defer mu.Unlock()
	pending = append(pending, release)
}

// MaybeDrop runs all queued release callbacks and returns how many ran. If
// another goroutine is already draining, it returns 0 immediately rather
// than blocking the caller.
func MaybeDrop() int {
	if !mu.TryLock() {
		return 0
	}
	drained := pending
	pending = nil
	mu.Unlock()

	for _, release := range drained {
		release()
	}
	return len(drained)
}
