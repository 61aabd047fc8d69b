// Package core assembles the engine's immutable execution context: the
// dependency graph, rule graph, type registry, task runtime, content store,
// bounded command dispatcher, virtual filesystem, and build root. One Core
// is constructed per engine instance and shared by reference with every
// concurrently running node computation for the life of the process.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/seantiz/anvil/internal/cas"
	"github.com/seantiz/anvil/internal/execcache"
	"github.com/seantiz/anvil/internal/graph"
	"github.com/seantiz/anvil/internal/process"
	"github.com/seantiz/anvil/internal/rules"
	"github.com/seantiz/anvil/internal/taskrt"
	"github.com/seantiz/anvil/internal/vfs"
)

// Core is shared by reference between the scheduler and the invocation
// contexts of all running nodes. Fields are immutable after New except the
// graph and runtime, which are internally synchronized.
type Core struct {
	Graph     *graph.Graph
	Tasks     *rules.Catalogue
	RuleGraph *rules.RuleGraph
	Types     rules.TypeRegistry

	runtime *taskrt.Runtime
	store   cas.Store
	runner  *process.BoundedRunner

	// HTTPClient is used by collaborators outside this core (remote
	// artifact fetch and the like).
	HTTPClient *http.Client

	FS        *vfs.FS
	BuildRoot string

	remoteRunner *process.RemoteRunner
	execCache    *execcache.Cache
	logger       *slog.Logger
}

// New builds a Core. Failures are *InitError values identifying the failing
// subsystem and resource; no partial Core is ever returned and nothing is
// retried at this layer.
func New(opts Options, logger *slog.Logger) (*Core, error) {
	if err := opts.normalize(); err != nil {
		return nil, initErr(KindOptions, "", err)
	}

	// Randomize CAS server order so a fleet sharing one default config does
	// not hammer the same server first. A permutation only: consumers treat
	// the list as an unordered set.
	remoteStoreServers := shuffled(opts.RemoteStoreServers)

	runtime := taskrt.New(logger)

	// Certs and token are shared between the store and remote execution;
	// the two services carry one identity.
	rootCACerts, oauthToken, err := readCredentials(opts)
	if err != nil {
		runtime.Close()
		return nil, err
	}

	if err := os.MkdirAll(opts.LocalStoreDir, 0o755); err != nil {
		runtime.Close()
		return nil, initErr(KindStoreDir, opts.LocalStoreDir, err)
	}

	store, err := openStore(opts, remoteStoreServers, rootCACerts, oauthToken)
	if err != nil {
		runtime.Close()
		return nil, err
	}

	c := &Core{
		Tasks:     opts.Tasks,
		Types:     opts.Types,
		runtime:   runtime,
		store:     store,
		BuildRoot: opts.BuildRoot,
		logger:    logger,
	}

	if err := c.selectRunner(opts, store, rootCACerts, oauthToken, logger); err != nil {
		c.Close()
		return nil, err
	}

	c.HTTPClient, err = cas.HTTPClient(rootCACerts)
	if err != nil {
		c.Close()
		return nil, initErr(KindCredentials, opts.RootCACertsPath, err)
	}

	c.RuleGraph, err = rules.Build(opts.Tasks, opts.RootSubjectTypes)
	if err != nil {
		c.Close()
		return nil, initErr(KindRuleGraph, "", err)
	}

	c.FS, err = vfs.New(opts.BuildRoot, opts.IgnorePatterns)
	if err != nil {
		c.Close()
		return nil, initErr(KindVFS, opts.BuildRoot, err)
	}

	c.Graph = graph.New()
	return c, nil
}

// shuffled returns a shuffled copy of servers.
func shuffled(servers []string) []string {
	out := append([]string(nil), servers...)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func readCredentials(opts Options) ([]byte, string, error) {
	var certs []byte
	if opts.RootCACertsPath != "" {
		var err error
		certs, err = os.ReadFile(opts.RootCACertsPath)
		if err != nil {
			return nil, "", initErr(KindCredentials, opts.RootCACertsPath, fmt.Errorf("read root CA certs: %w", err))
		}
	}
	var token string
	if opts.OAuthBearerTokenPath != "" {
		raw, err := os.ReadFile(opts.OAuthBearerTokenPath)
		if err != nil {
			return nil, "", initErr(KindCredentials, opts.OAuthBearerTokenPath, fmt.Errorf("read OAuth bearer token: %w", err))
		}
		token = string(raw)
	}
	return certs, token, nil
}

// openStore picks local-only vs local+remote from the server list. The
// backoff spacing is intentionally fixed even though the retry count is
// configurable.
func openStore(opts Options, servers []string, certs []byte, token string) (cas.Store, error) {
	if len(servers) == 0 {
		store, err := cas.LocalOnly(opts.LocalStoreDir)
		if err != nil {
			return cas.Store{}, initErr(KindStore, opts.LocalStoreDir, err)
		}
		return store, nil
	}

	store, err := cas.WithRemote(opts.LocalStoreDir, servers, cas.RemoteOptions{
		InstanceName: opts.RemoteInstanceName,
		RootCACerts:  certs,
		BearerToken:  token,
		ThreadCount:  opts.RemoteStoreThreadCount,
		ChunkBytes:   opts.RemoteStoreChunkBytes,
		ChunkTimeout: opts.RemoteStoreChunkTimeout,
		Backoff:      cas.DefaultBackoff(),
		RPCRetries:   opts.RemoteStoreRPCRetries,
	})
	if err != nil {
		return cas.Store{}, initErr(KindStore, fmt.Sprintf("%s + %d remote server(s)", opts.LocalStoreDir, len(servers)), err)
	}
	return store, nil
}

// selectRunner fixes the command-runner strategy for the process lifetime:
// remote when a remote execution server is configured, local otherwise,
// wrapped either way in the global execution bound.
func (c *Core) selectRunner(opts Options, store cas.Store, certs []byte, token string, logger *slog.Logger) error {
	var (
		inner    process.Runner
		strategy string
	)
	if opts.RemoteExecutionServer != "" {
		remote, err := process.NewRemoteRunner(process.RemoteOptions{
			Address:            opts.RemoteExecutionServer,
			CacheNamespace:     opts.RemoteCacheNamespace,
			InstanceName:       opts.RemoteInstanceName,
			RootCACerts:        certs,
			BearerToken:        token,
			PlatformProperties: opts.RemoteExtraPlatformProps,
			Workers:            opts.Parallelism + remoteBookkeepingThreads,
		}, logger)
		if err != nil {
			return initErr(KindRunner, opts.RemoteExecutionServer, err)
		}
		c.remoteRunner = remote
		inner = remote
		strategy = process.StrategyRemote
	} else {
		inner = process.NewLocalRunner(store, opts.WorkDir, opts.CleanupLocalDirs, logger)
		strategy = process.StrategyLocal

		if opts.ExecCachePath != "" {
			cache, err := execcache.Open(opts.ExecCachePath)
			if err != nil {
				return initErr(KindExecCache, opts.ExecCachePath, err)
			}
			c.execCache = cache
			inner = execcache.NewCachedRunner(inner, cache, store)
		}
	}

	bounded, err := process.NewBoundedRunner(inner, opts.Parallelism, strategy)
	if err != nil {
		return initErr(KindRunner, "", err)
	}
	c.runner = bounded
	return nil
}

// Store returns the shared content-store handle.
func (c *Core) Store() cas.Store {
	return c.store
}

// Runner returns the bounded command dispatcher.
func (c *Core) Runner() *process.BoundedRunner {
	return c.runner
}

// Spawn schedules asynchronous work on the core's runtime, carrying the
// caller's logging destination into it.
func (c *Core) Spawn(fn func(ctx context.Context)) {
	c.runtime.Spawn(fn)
}

// BlockOn runs a unit of work to completion and returns its own outcome.
// Must not be called from inside work running on this core's runtime.
func (c *Core) BlockOn(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	return c.runtime.BlockOn(ctx, fn)
}

// Close tears the core down: runtime drained, remote workers stopped,
// caches closed. Safe to call on a partially constructed core.
func (c *Core) Close() {
	if c.runtime != nil {
		c.runtime.Close()
	}
	if c.remoteRunner != nil {
		c.remoteRunner.Close()
	}
	if c.execCache != nil {
		if err := c.execCache.Close(); err != nil {
			c.logger.Warn("exec cache close failed", "err", err)
		}
	}
}
