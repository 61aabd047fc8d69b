package core

import (
	"fmt"
	"time"

	"github.com/seantiz/anvil/internal/rules"
)

// Default sizing for the remote store and execution clients.
const (
	DefaultStoreThreadCount   = 4
	DefaultStoreChunkBytes    = 1 << 20
	DefaultChunkUploadTimeout = 60 * time.Second
	DefaultStoreRPCRetries    = 3
	DefaultParallelism        = 8

	// remoteBookkeepingThreads is the headroom the remote execution client
	// gets beyond the execution-slot bound, so status polling never
	// competes for execution slots.
	remoteBookkeepingThreads = 2
)

// Options carries every ExecutionCore constructor parameter.
type Options struct {
	RootSubjectTypes []rules.TypeID
	Tasks            *rules.Catalogue
	Types            rules.TypeRegistry

	BuildRoot      string
	IgnorePatterns []string
	WorkDir        string
	LocalStoreDir  string

	// Remote store; empty list selects the local-only store.
	RemoteStoreServers      []string
	RemoteStoreThreadCount  int
	RemoteStoreChunkBytes   int
	RemoteStoreChunkTimeout time.Duration
	RemoteStoreRPCRetries   int

	// Remote execution; empty address selects the local strategy.
	RemoteExecutionServer    string
	RemoteCacheNamespace     string
	RemoteInstanceName       string
	RemoteExtraPlatformProps map[string]string

	// Shared identity material for the remote store and remote execution.
	RootCACertsPath      string
	OAuthBearerTokenPath string

	Parallelism      int
	CleanupLocalDirs bool

	// ExecCachePath enables the local process-result cache when non-empty.
	// Only meaningful for the local strategy.
	ExecCachePath string
}

// normalize applies defaults and rejects nonsensical values.
func (o *Options) normalize() error {
	if o.BuildRoot == "" {
		return fmt.Errorf("build root is required")
	}
	if o.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if o.LocalStoreDir == "" {
		return fmt.Errorf("local store dir is required")
	}
	if o.Tasks == nil {
		o.Tasks = &rules.Catalogue{}
	}
	if o.Types == nil {
		o.Types = rules.TypeRegistry{}
	}
	if o.RemoteStoreThreadCount <= 0 {
		o.RemoteStoreThreadCount = DefaultStoreThreadCount
	}
	if o.RemoteStoreChunkBytes <= 0 {
		o.RemoteStoreChunkBytes = DefaultStoreChunkBytes
	}
	if o.RemoteStoreChunkTimeout <= 0 {
		o.RemoteStoreChunkTimeout = DefaultChunkUploadTimeout
	}
	if o.RemoteStoreRPCRetries < 0 {
		return fmt.Errorf("negative RPC retry count %d", o.RemoteStoreRPCRetries)
	}
	if o.RemoteStoreRPCRetries == 0 {
		o.RemoteStoreRPCRetries = DefaultStoreRPCRetries
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	return nil
}
