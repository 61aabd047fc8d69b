// Package logging tracks the diagnostic destination for log output: which
// origin (daemon or console) a piece of work logs as, and the slog.Logger it
// writes through. The task runtime captures the current destination when work
// is scheduled and re-establishes it inside the scheduled work, so output is
// attributed to the origin that requested it rather than the goroutine that
// happens to run it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Origin labels where log output should be attributed.
type Origin string

const (
	// OriginDaemon attributes output to the long-running engine process.
	OriginDaemon Origin = "daemon"
	// OriginConsole attributes output to an interactive invocation.
	OriginConsole Origin = "console"
)

// Destination pairs an origin with the logger that writes for it.
type Destination struct {
	Origin Origin
	Logger *slog.Logger
}

var (
	mu      sync.RWMutex
	current = Destination{
		Origin: OriginConsole,
		Logger: slog.Default(),
	}
)

// GetDestination returns the process-current destination.
func GetDestination() Destination {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetDestination replaces the process-current destination and returns the
// previous one.
func SetDestination(d Destination) Destination {
	mu.Lock()
	defer mu.Unlock()
	prev := current
	current = d
	return prev
}

// key is an unexported type to prevent collisions with context keys from
// other packages.
type key struct{}

var destKey = key{}

// WithDestination returns a context carrying the given destination.
func WithDestination(ctx context.Context, d Destination) context.Context {
	return context.WithValue(ctx, destKey, d)
}

// FromContext extracts the destination from a context, falling back to the
// process-current destination when none was attached.
func FromContext(ctx context.Context) Destination {
	if d, ok := ctx.Value(destKey).(Destination); ok {
		return d
	}
	return GetDestination()
}

// Nop returns a destination that discards all output. Useful in tests.
func Nop() Destination {
	return Destination{
		Origin: OriginConsole,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
