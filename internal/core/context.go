package core

import (
	"context"

	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/graph"
	"github.com/seantiz/anvil/internal/handles"
	"github.com/seantiz/anvil/internal/nodes"
	"github.com/seantiz/anvil/internal/process"
	"github.com/seantiz/anvil/internal/rules"
	"github.com/seantiz/anvil/internal/session"
	"github.com/seantiz/anvil/internal/vfs"
)

// Context is the lightweight per-node invocation handle: a node's entry
// identity, a shared reference to the Core, and the run's session. Cloning
// is shallow — every clone observes the same shared state.
type Context struct {
	EntryID graph.EntryID
	Core    *Core
	Session *session.Session
}

// NewContext creates the initial context for a run.
func NewContext(c *Core, s *session.Session) Context {
	return Context{Core: c, Session: s}
}

// CloneFor returns this context rebound to another entry identity. The Core
// reference and Session are shared, not copied.
func (ic Context) CloneFor(id graph.EntryID) graph.Context {
	return Context{EntryID: id, Core: ic.Core, Session: ic.Session}
}

// Spawn schedules sub-computation work on the core's runtime.
func (ic Context) Spawn(fn func(ctx context.Context)) {
	ic.Core.Spawn(fn)
}

// Get returns node's dynamically-typed value, computing it through the
// dependency graph if not already cached for this context's entry. Narrow
// the result with the package-level Get for a typed fetch.
func (ic Context) Get(ctx context.Context, node graph.Node) (any, error) {
	// Housekeeping: reclaim externally owned handles queued since the last
	// fetch.
	handles.MaybeDrop()

	// A cancelled session admits no new work.
	if err := ic.Session.Err(); err != nil {
		return nil, err
	}
	return ic.Core.Graph.Get(ctx, ic.EntryID, ic, node)
}

// FS returns the virtual filesystem over the build root.
func (ic Context) FS() *vfs.FS {
	return ic.Core.FS
}

// Store returns the shared content store.
func (ic Context) Store() cas.Store {
	return ic.Core.Store()
}

// ProcessRunner returns the bounded command dispatcher.
func (ic Context) ProcessRunner() process.Runner {
	return ic.Core.Runner()
}

// Rules returns the rule graph.
func (ic Context) Rules() *rules.RuleGraph {
	return ic.Core.RuleGraph
}

// Get fetches node through ic's graph and narrows the result to T. A
// narrowing failure means a node implementation returned the wrong shape
// for its own identity; the caller must fail its computation with the
// returned error.
func Get[T any](ctx context.Context, ic Context, node graph.Node) (T, error) {
	v, err := ic.Get(ctx, node)
	if err != nil {
		var zero T
		return zero, err
	}
	t, err := nodes.Narrow[T](v)
	if err != nil {
		// Wrong shape from a node is a programming error in the node set,
		// not a transient condition. Log it loudly before surfacing.
		ic.Core.logger.Error("node produced a value of the wrong type",
			"node", node.ID(),
			"error", err)
		var zero T
		return zero, err
	}
	return t, nil
}
