// Package nodes defines the closed set of node kinds the engine computes,
// their kind-tagged result types, and the checked narrowing that converts a
// graph's dynamically-typed result into the type a caller expects.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/graph"
	"github.com/seantiz/anvil/internal/process"
	"github.com/seantiz/anvil/internal/rules"
	"github.com/seantiz/anvil/internal/vfs"
)

// ErrWrongResultType reports a node implementation returning a value of the
// wrong shape for its own declared identity. It is a programming-invariant
// violation: the requesting computation fails, siblings are unaffected.
var ErrWrongResultType = errors.New("node result has wrong type")

// Env is what a node computation may reach: recursive fetches through the
// graph plus the engine's shared services. The engine's invocation context
// implements it.
type Env interface {
	graph.Context
	Get(ctx context.Context, n graph.Node) (any, error)
	FS() *vfs.FS
	Store() cas.Store
	ProcessRunner() process.Runner
	Rules() *rules.RuleGraph
}

// Narrow converts a graph result to the statically expected type. A
// mismatch returns ErrWrongResultType; callers must fail their computation
// rather than continue with the wrong shape.
func Narrow[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("expected %T, got %T: %w", zero, v, ErrWrongResultType)
	}
	return t, nil
}

// env narrows a graph context to the engine Env; failing means a node was
// run outside the engine, which is the same class of invariant violation as
// a result-type mismatch.
func env(nctx graph.Context) (Env, error) {
	e, ok := nctx.(Env)
	if !ok {
		return nil, fmt.Errorf("node ran without an engine context (%T): %w", nctx, ErrWrongResultType)
	}
	return e, nil
}

// FileDigest is the result of DigestFile: one file's content captured into
// the store.
type FileDigest struct {
	Path   string
	Digest cas.Digest
}

// DigestFile reads one build-root-relative file and stores its content.
type DigestFile struct {
	Path string
}

func (n DigestFile) ID() string { return "digest-file:" + n.Path }

func (n DigestFile) Run(ctx context.Context, nctx graph.Context) (any, error) {
	e, err := env(nctx)
	if err != nil {
		return nil, err
	}
	content, err := e.FS().ReadFile(n.Path)
	if err != nil {
		return nil, err
	}
	d, err := e.Store().Put(ctx, content)
	if err != nil {
		return nil, err
	}
	return FileDigest{Path: n.Path, Digest: d}, nil
}

// DirListing is the result of Scandir.
type DirListing struct {
	Path    string
	Entries []vfs.Entry
}

// Scandir lists one build-root-relative directory.
type Scandir struct {
	Path string
}

func (n Scandir) ID() string { return "scandir:" + n.Path }

func (n Scandir) Run(ctx context.Context, nctx graph.Context) (any, error) {
	e, err := env(nctx)
	if err != nil {
		return nil, err
	}
	entries, err := e.FS().Scandir(n.Path)
	if err != nil {
		return nil, err
	}
	return DirListing{Path: n.Path, Entries: entries}, nil
}

// SnapshotResult captures a set of files: their individual digests plus a
// digest over the whole set.
type SnapshotResult struct {
	Files  []FileDigest
	Digest cas.Digest
}

// Snapshot captures the given files by fetching a DigestFile node per path,
// so shared files digest once across snapshots.
type Snapshot struct {
	Paths []string
}

func (n Snapshot) ID() string {
	quoted := make([]string, len(n.Paths))
	for i, p := range n.Paths {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return "snapshot:" + strings.Join(quoted, ",")
}

func (n Snapshot) Run(ctx context.Context, nctx graph.Context) (any, error) {
	e, err := env(nctx)
	if err != nil {
		return nil, err
	}

	files := make([]FileDigest, 0, len(n.Paths))
	var manifest strings.Builder
	for _, p := range n.Paths {
		v, err := e.Get(ctx, DigestFile{Path: p})
		if err != nil {
			return nil, err
		}
		fd, err := Narrow[FileDigest](v)
		if err != nil {
			return nil, err
		}
		files = append(files, fd)
		fmt.Fprintf(&manifest, "%s %s\n", fd.Path, fd.Digest)
	}

	d, err := e.Store().Put(ctx, []byte(manifest.String()))
	if err != nil {
		return nil, err
	}
	return SnapshotResult{Files: files, Digest: d}, nil
}

// ProcessOutcome is the result of ExecuteProcess.
type ProcessOutcome struct {
	Result process.Result
}

// ExecuteProcess routes one process execution through the engine's bounded
// dispatcher.
type ExecuteProcess struct {
	Req process.Request
}

func (n ExecuteProcess) ID() string { return "execute-process:" + n.Req.Fingerprint() }

func (n ExecuteProcess) Run(ctx context.Context, nctx graph.Context) (any, error) {
	e, err := env(nctx)
	if err != nil {
		return nil, err
	}
	res, err := e.ProcessRunner().Run(ctx, n.Req)
	if err != nil {
		return nil, err
	}
	return ProcessOutcome{Result: res}, nil
}

// Value is the result of a Task node.
type Value struct {
	Product rules.TypeID
	Subject string
	Value   any
}

// Task computes a rule-graph product for a subject by running the first
// registered task for that product.
type Task struct {
	Product rules.TypeID
	Subject string
}

func (n Task) ID() string { return fmt.Sprintf("task:%s:%s", n.Product, n.Subject) }

func (n Task) Run(ctx context.Context, nctx graph.Context) (any, error) {
	e, err := env(nctx)
	if err != nil {
		return nil, err
	}
	tasks := e.Rules().TasksFor(n.Product)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no task produces %q", n.Product)
	}
	t := tasks[0]
	if t.Func == nil {
		return nil, fmt.Errorf("task %q has no function", t.Name)
	}
	v, err := t.Func(ctx, e, n.Subject)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", t.Name, err)
	}
	return Value{Product: n.Product, Subject: n.Subject, Value: v}, nil
}
