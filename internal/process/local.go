package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/seantiz/anvil/internal/cas"
)

// LocalRunner executes processes on this host under a scratch directory
// beneath the configured work dir.
type LocalRunner struct {
	store   cas.Store
	workDir string
	cleanup bool
	logger  *slog.Logger
}

// NewLocalRunner returns the local execution strategy. When cleanup is set,
// each execution's scratch directory is removed after the run; otherwise it
// is left behind for debugging.
func NewLocalRunner(store cas.Store, workDir string, cleanup bool, logger *slog.Logger) *LocalRunner {
	return &LocalRunner{
		store:   store,
		workDir: workDir,
		cleanup: cleanup,
		logger:  logger,
	}
}

// Run materializes the request's inputs, executes it, and captures its
// stdout, stderr, and declared output files into the store. A non-zero exit
// is a successful Run with a non-zero ExitCode; only engine-level faults
// (materialization, spawn, capture) return an error.
func (l *LocalRunner) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Argv) == 0 {
		return Result{}, fmt.Errorf("empty argv")
	}

	if err := os.MkdirAll(l.workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	scratch, err := os.MkdirTemp(l.workDir, "exec-")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	if l.cleanup {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				l.logger.Warn("scratch dir cleanup failed", "dir", scratch, "err", err)
			}
		}()
	}

	if err := l.materialize(ctx, scratch, req.InputFiles); err != nil {
		return Result{}, err
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = scratch
	cmd.Env = flattenEnv(req.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	executionsTotal.WithLabelValues(StrategyLocal, outcomeLabel(runErr)).Inc()
	executionDuration.WithLabelValues(StrategyLocal).Observe(time.Since(start).Seconds())

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("run %q: %w", req.Argv[0], runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	res := Result{ExitCode: exitCode}
	if res.Stdout, err = l.store.Put(ctx, stdout.Bytes()); err != nil {
		return Result{}, fmt.Errorf("store stdout: %w", err)
	}
	if res.Stderr, err = l.store.Put(ctx, stderr.Bytes()); err != nil {
		return Result{}, fmt.Errorf("store stderr: %w", err)
	}
	if res.OutputFiles, err = l.captureOutputs(ctx, scratch, req.OutputFiles); err != nil {
		return Result{}, err
	}
	return res, nil
}

// materialize writes the request's input files from the store into the
// scratch dir.
func (l *LocalRunner) materialize(ctx context.Context, scratch string, inputs map[string]cas.Digest) error {
	for rel, digest := range inputs {
		content, err := l.store.Get(ctx, digest)
		if err != nil {
			return fmt.Errorf("materialize %s: %w", rel, err)
		}
		abs := filepath.Join(scratch, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("materialize %s: %w", rel, err)
		}
		if err := os.WriteFile(abs, content, 0o644); err != nil {
			return fmt.Errorf("materialize %s: %w", rel, err)
		}
	}
	return nil
}

// captureOutputs stores declared output files. A declared output the
// process did not produce is skipped, not an error; consumers see its
// absence in the result.
func (l *LocalRunner) captureOutputs(ctx context.Context, scratch string, outputs []string) (map[string]cas.Digest, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	captured := make(map[string]cas.Digest)
	for _, rel := range outputs {
		content, err := os.ReadFile(filepath.Join(scratch, rel))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", rel, err)
		}
		d, err := l.store.Put(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", rel, err)
		}
		captured[rel] = d
	}
	return captured, nil
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
