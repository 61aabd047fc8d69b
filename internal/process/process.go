// Package process defines the command-execution capability shared by every
// process-executing node: a uniform Runner interface with exactly two
// strategies (local and remote), selected once at engine construction, plus
// the bounded dispatcher that enforces the global execution-slot ceiling.
package process

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seantiz/anvil/internal/cas"
)

// Strategy labels for metrics and stats.
const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// Request describes one external process execution. Input files are
// materialized from the CAS into the execution root before the process
// starts; output files are captured back into the CAS afterwards.
type Request struct {
	Argv        []string              `json:"argv"`
	Env         map[string]string     `json:"env,omitempty"`
	InputFiles  map[string]cas.Digest `json:"input_files,omitempty"`
	OutputFiles []string              `json:"output_files,omitempty"`
	Description string                `json:"description,omitempty"`
	Timeout     time.Duration         `json:"timeout,omitempty"`
}

// Result is the captured outcome of one process execution. Stdout and
// stderr live in the CAS.
type Result struct {
	ExitCode    int                   `json:"exit_code"`
	Stdout      cas.Digest            `json:"stdout"`
	Stderr      cas.Digest            `json:"stderr"`
	OutputFiles map[string]cas.Digest `json:"output_files,omitempty"`
}

// Runner executes processes. The two implementations are LocalRunner and
// RemoteRunner; BoundedRunner and CachedRunner wrap either.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Fingerprint returns a stable identity for the request, used as the
// memoization and cache key. Maps are folded in sorted key order so equal
// requests always fingerprint identically.
func (r Request) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "argv:%s\n", strings.Join(r.Argv, "\x00"))

	envKeys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		fmt.Fprintf(h, "env:%s=%s\n", k, r.Env[k])
	}

	inKeys := make([]string, 0, len(r.InputFiles))
	for k := range r.InputFiles {
		inKeys = append(inKeys, k)
	}
	sort.Strings(inKeys)
	for _, k := range inKeys {
		fmt.Fprintf(h, "in:%s=%s\n", k, r.InputFiles[k])
	}

	outs := append([]string(nil), r.OutputFiles...)
	sort.Strings(outs)
	fmt.Fprintf(h, "out:%s\n", strings.Join(outs, "\x00"))
	fmt.Fprintf(h, "timeout:%d\n", r.Timeout)

	return hex.EncodeToString(h.Sum(nil))
}
