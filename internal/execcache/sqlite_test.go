package execcache_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/execcache"
	"github.com/seantiz/anvil/internal/process"
)

func newCache(t *testing.T) *execcache.Cache {
	t.Helper()
	c, err := execcache.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func storedResult(t *testing.T, store cas.Store, stdout, stderr string) process.Result {
	t.Helper()
	ctx := context.Background()
	out, err := store.Put(ctx, []byte(stdout))
	if err != nil {
		t.Fatalf("Put stdout: %v", err)
	}
	errd, err := store.Put(ctx, []byte(stderr))
	if err != nil {
		t.Fatalf("Put stderr: %v", err)
	}
	return process.Result{ExitCode: 0, Stdout: out, Stderr: errd}
}

func TestPutGetRoundtrip(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	store, err := cas.LocalOnly(t.TempDir())
	if err != nil {
		t.Fatalf("LocalOnly: %v", err)
	}
	res := storedResult(t, store, "stdout", "stderr")
	res.OutputFiles = map[string]cas.Digest{"a.o": cas.NewDigest([]byte("obj"))}

	if err := c.Put(ctx, "fp-1", res); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get miss for stored fingerprint")
	}
	if got.ExitCode != res.ExitCode || got.Stdout != res.Stdout || got.Stderr != res.Stderr {
		t.Errorf("Get = %+v, want %+v", got, res)
	}
	if got.OutputFiles["a.o"] != res.OutputFiles["a.o"] {
		t.Errorf("OutputFiles = %v, want %v", got.OutputFiles, res.OutputFiles)
	}
}

func TestGetMiss(t *testing.T) {
	c := newCache(t)
	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get hit for absent fingerprint")
	}
}

// countingRunner counts real executions.
type countingRunner struct {
	runs  atomic.Int32
	store cas.Store
}

func (cr *countingRunner) Run(ctx context.Context, req process.Request) (process.Result, error) {
	cr.runs.Add(1)
	out, err := cr.store.Put(ctx, []byte("ran"))
	if err != nil {
		return process.Result{}, err
	}
	empty, err := cr.store.Put(ctx, nil)
	if err != nil {
		return process.Result{}, err
	}
	return process.Result{ExitCode: 0, Stdout: out, Stderr: empty}, nil
}

func TestCachedRunnerServesHit(t *testing.T) {
	c := newCache(t)
	store, err := cas.LocalOnly(t.TempDir())
	if err != nil {
		t.Fatalf("LocalOnly: %v", err)
	}
	inner := &countingRunner{store: store}
	r := execcache.NewCachedRunner(inner, c, store)
	ctx := context.Background()

	req := process.Request{Argv: []string{"cc", "main.c"}}
	if _, err := r.Run(ctx, req); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := r.Run(ctx, req); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if got := inner.runs.Load(); got != 1 {
		t.Errorf("inner runs = %d, want 1 (second call should hit the cache)", got)
	}
}

func TestCachedRunnerDistinguishesRequests(t *testing.T) {
	c := newCache(t)
	store, err := cas.LocalOnly(t.TempDir())
	if err != nil {
		t.Fatalf("LocalOnly: %v", err)
	}
	inner := &countingRunner{store: store}
	r := execcache.NewCachedRunner(inner, c, store)
	ctx := context.Background()

	if _, err := r.Run(ctx, process.Request{Argv: []string{"cc", "a.c"}}); err != nil {
		t.Fatalf("Run a: %v", err)
	}
	if _, err := r.Run(ctx, process.Request{Argv: []string{"cc", "b.c"}}); err != nil {
		t.Fatalf("Run b: %v", err)
	}

	if got := inner.runs.Load(); got != 2 {
		t.Errorf("inner runs = %d, want 2", got)
	}
}
