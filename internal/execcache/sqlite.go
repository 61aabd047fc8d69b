// Package execcache persists process-execution results in SQLite, keyed by
// the request fingerprint. Wrapping a runner with CachedRunner gives
// repeated identical executions a local cache hit instead of a re-run.
package execcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/process"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS process_results (
    fingerprint  TEXT PRIMARY KEY,
    exit_code    INTEGER NOT NULL,
    stdout_hash  TEXT NOT NULL,
    stdout_size  INTEGER NOT NULL,
    stderr_hash  TEXT NOT NULL,
    stderr_size  INTEGER NOT NULL,
    output_files TEXT,
    created_at   DATETIME NOT NULL
)`

// Cache is a SQLite-backed process-result cache.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database and runs migrations.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached result for a fingerprint, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (process.Result, bool, error) {
	var (
		res         process.Result
		outputsJSON sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT exit_code, stdout_hash, stdout_size, stderr_hash, stderr_size, output_files
		FROM process_results WHERE fingerprint = ?`, fingerprint,
	).Scan(
		&res.ExitCode,
		&res.Stdout.Hash, &res.Stdout.SizeBytes,
		&res.Stderr.Hash, &res.Stderr.SizeBytes,
		&outputsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return process.Result{}, false, nil
	}
	if err != nil {
		return process.Result{}, false, fmt.Errorf("get cached result: %w", err)
	}

	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &res.OutputFiles); err != nil {
			return process.Result{}, false, fmt.Errorf("decode cached outputs: %w", err)
		}
	}
	return res, true, nil
}

// Put records a result for a fingerprint. Re-inserting the same fingerprint
// keeps the existing row: results are deterministic per fingerprint.
func (c *Cache) Put(ctx context.Context, fingerprint string, res process.Result) error {
	var outputsJSON []byte
	if len(res.OutputFiles) > 0 {
		var err error
		outputsJSON, err = json.Marshal(res.OutputFiles)
		if err != nil {
			return fmt.Errorf("encode outputs: %w", err)
		}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO process_results (
			fingerprint, exit_code, stdout_hash, stdout_size,
			stderr_hash, stderr_size, output_files, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fingerprint, res.ExitCode,
		res.Stdout.Hash, res.Stdout.SizeBytes,
		res.Stderr.Hash, res.Stderr.SizeBytes,
		string(outputsJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cached result: %w", err)
	}
	return nil
}

// CachedRunner serves repeated executions from the cache. Only clean exits
// are cached; failures re-run.
type CachedRunner struct {
	inner process.Runner
	cache *Cache
	store cas.Store
}

// NewCachedRunner wraps inner with the cache. The store is consulted so a
// hit whose blobs were evicted locally still re-runs instead of handing out
// dangling digests (remote-mode stores can refetch, local-only cannot).
func NewCachedRunner(inner process.Runner, cache *Cache, store cas.Store) *CachedRunner {
	return &CachedRunner{inner: inner, cache: cache, store: store}
}

// Run returns the cached result when present, otherwise delegates and
// records the outcome.
func (r *CachedRunner) Run(ctx context.Context, req process.Request) (process.Result, error) {
	fp := req.Fingerprint()

	cached, ok, err := r.cache.Get(ctx, fp)
	if err != nil {
		return process.Result{}, err
	}
	if ok && r.blobsAvailable(ctx, cached) {
		cacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	res, err := r.inner.Run(ctx, req)
	if err != nil {
		return process.Result{}, err
	}
	if res.ExitCode == 0 {
		if err := r.cache.Put(ctx, fp, res); err != nil {
			return process.Result{}, err
		}
	}
	return res, nil
}

func (r *CachedRunner) blobsAvailable(ctx context.Context, res process.Result) bool {
	for _, d := range []cas.Digest{res.Stdout, res.Stderr} {
		if _, err := r.store.Get(ctx, d); err != nil {
			return false
		}
	}
	for _, d := range res.OutputFiles {
		if _, err := r.store.Get(ctx, d); err != nil {
			return false
		}
	}
	return true
}
