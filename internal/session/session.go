// Package session provides the per-run handle identifying one top-level
// invocation. Sessions are shared by pointer into every invocation context;
// cancelling a session stops new work for that run and lets in-flight work
// observe cancellation cooperatively.
package session

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Session identifies one top-level run.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a session scoped under parent.
func New(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:     ulid.Make().String(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the session's ULID.
func (s *Session) ID() string {
	return s.id
}

// Context returns the run-scoped context. Work for this run should derive
// from it so cancellation reaches every suspension point.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done reports run cancellation.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns nil while the run is live, or the cancellation cause.
func (s *Session) Err() error {
	return s.ctx.Err()
}

// Cancel ends the run. New work for the session is refused; in-flight work
// observes cancellation at its next suspension point.
func (s *Session) Cancel() {
	s.cancel()
}
