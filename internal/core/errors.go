package core

import "fmt"

// InitKind classifies a construction failure by the subsystem that failed.
type InitKind string

const (
	KindCredentials InitKind = "credentials"
	KindStoreDir    InitKind = "store-dir"
	KindStore       InitKind = "store"
	KindRunner      InitKind = "runner"
	KindExecCache   InitKind = "exec-cache"
	KindRuleGraph   InitKind = "rule-graph"
	KindVFS         InitKind = "vfs"
	KindOptions     InitKind = "options"
)

// InitError is a construction failure: the kind of subsystem that failed,
// the offending resource (path or address), and the underlying cause.
// Construction failures are not retried and never produce a partial Core;
// callers decide whether to exit or report.
type InitError struct {
	Kind     InitKind
	Resource string
	Err      error
}

func (e *InitError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("initialize %s (%s): %v", e.Kind, e.Resource, e.Err)
	}
	return fmt.Sprintf("initialize %s: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

func initErr(kind InitKind, resource string, err error) *InitError {
	return &InitError{Kind: kind, Resource: resource, Err: err}
}
