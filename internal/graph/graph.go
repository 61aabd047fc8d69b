// Package graph implements the memoizing dependency graph at the heart of
// the engine: compute-or-return-cached node values with at-most-one
// computation in flight per node, and dependency edges recorded from caller
// to callee. Serialization is per entry; no lock is held across a
// computation.
package graph

import (
	"context"
	"sync"
)

// EntryID identifies a node's slot in one graph instance.
type EntryID uint64

// Node is a unit of computation memoized by the graph. ID must be a stable,
// collision-free identity for the computation.
type Node interface {
	ID() string
	Run(ctx context.Context, nctx Context) (any, error)
}

// Context is the per-entry invocation handle a computation runs with. The
// graph clones it for each callee so a node computes under its own entry
// identity, and spawns the computation through it so work lands on the
// engine's task runtime.
type Context interface {
	CloneFor(id EntryID) Context
	Spawn(fn func(ctx context.Context))
}

type entry struct {
	id   EntryID
	node Node

	started bool
	done    chan struct{}
	result  any
	err     error
}

// Graph memoizes node computations. Safe for concurrent use.
type Graph struct {
	mu    sync.Mutex
	next  EntryID
	byKey map[string]*entry
	byID  map[EntryID]*entry
	// deps records caller entry -> callee entries.
	deps map[EntryID]map[EntryID]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byKey: make(map[string]*entry),
		byID:  make(map[EntryID]*entry),
		deps:  make(map[EntryID]map[EntryID]bool),
	}
}

// intern returns the entry for node, creating it if needed. Caller holds mu.
func (g *Graph) intern(node Node) *entry {
	key := node.ID()
	if e, ok := g.byKey[key]; ok {
		return e
	}
	g.next++
	e := &entry{
		id:   g.next,
		node: node,
		done: make(chan struct{}),
	}
	g.byKey[key] = e
	g.byID[e.id] = e
	return e
}

// Entry interns node without computing it and returns its EntryID. Used to
// seat the initial invocation context of a run.
func (g *Graph) Entry(node Node) EntryID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intern(node).id
}

// Len reports the number of interned entries.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byKey)
}

// Get returns node's value, computing it at most once no matter how many
// callers request it concurrently. The computation runs as spawned work
// under a context cloned for the node's own entry; callers wait for the
// shared outcome or their own cancellation. caller's dependency on node is
// recorded.
func (g *Graph) Get(ctx context.Context, caller EntryID, nctx Context, node Node) (any, error) {
	g.mu.Lock()
	e := g.intern(node)
	if caller != 0 && caller != e.id {
		edges, ok := g.deps[caller]
		if !ok {
			edges = make(map[EntryID]bool)
			g.deps[caller] = edges
		}
		edges[e.id] = true
	}
	start := !e.started
	e.started = true
	g.mu.Unlock()

	if start {
		child := nctx.CloneFor(e.id)
		nctx.Spawn(func(runCtx context.Context) {
			v, err := node.Run(runCtx, child)
			e.result, e.err = v, err
			close(e.done)
		})
	}

	select {
	case <-e.done:
		return e.result, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deps returns the recorded dependency entry IDs of caller.
func (g *Graph) Deps(caller EntryID) []EntryID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]EntryID, 0, len(g.deps[caller]))
	for id := range g.deps[caller] {
		out = append(out, id)
	}
	return out
}
