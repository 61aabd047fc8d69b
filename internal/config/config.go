// Package config loads engine configuration from an optional YAML file
// with environment-variable overrides, and builds the process logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/anvil/internal/core"
)

const (
	defaultListenAddr = ":8080"
	defaultBuildRoot  = "."
	defaultStoreDir   = ".anvil/store"
	defaultWorkDir    = ".anvil/exec"

	envListenAddr   = "ANVIL_LISTEN_ADDR"
	envLogLevel     = "ANVIL_LOG_LEVEL"
	envBuildRoot    = "ANVIL_BUILD_ROOT"
	envWorkDir      = "ANVIL_WORK_DIR"
	envStoreDir     = "ANVIL_STORE_DIR"
	envStoreServers = "ANVIL_STORE_SERVERS"
	envExecServer   = "ANVIL_EXEC_SERVER"
	envParallelism  = "ANVIL_PARALLELISM"
	envExecCache    = "ANVIL_EXEC_CACHE"
	envRootCACerts  = "ANVIL_ROOT_CA_CERTS"
	envOAuthToken   = "ANVIL_OAUTH_TOKEN"
)

// Config holds application configuration. File values override defaults and
// environment variables override both.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	BuildRoot      string   `yaml:"build_root"`
	WorkDir        string   `yaml:"work_dir"`
	StoreDir       string   `yaml:"store_dir"`
	IgnorePatterns []string `yaml:"ignore_patterns"`

	StoreServers     []string          `yaml:"store_servers"`
	StoreThreadCount int               `yaml:"store_thread_count"`
	StoreChunkBytes  int               `yaml:"store_chunk_bytes"`
	StoreRPCRetries  int               `yaml:"store_rpc_retries"`
	ExecServer       string            `yaml:"exec_server"`
	CacheNamespace   string            `yaml:"cache_namespace"`
	InstanceName     string            `yaml:"instance_name"`
	PlatformProps    map[string]string `yaml:"platform_properties"`
	RootCACertsPath  string            `yaml:"root_ca_certs"`
	OAuthTokenPath   string            `yaml:"oauth_token"`

	Parallelism      int    `yaml:"parallelism"`
	CleanupLocalDirs *bool  `yaml:"cleanup_local_dirs"`
	ExecCachePath    string `yaml:"exec_cache"`
}

// Load reads configuration: defaults, then the YAML file at path (if path is
// non-empty), then environment-variable overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		LogLevel:   "info",
		BuildRoot:  defaultBuildRoot,
		WorkDir:    defaultWorkDir,
		StoreDir:   defaultStoreDir,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envBuildRoot); v != "" {
		cfg.BuildRoot = v
	}
	if v := os.Getenv(envWorkDir); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv(envStoreDir); v != "" {
		cfg.StoreDir = v
	}
	if v := os.Getenv(envStoreServers); v != "" {
		cfg.StoreServers = splitList(v)
	}
	if v := os.Getenv(envExecServer); v != "" {
		cfg.ExecServer = v
	}
	if v := os.Getenv(envParallelism); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envParallelism, err)
		}
		cfg.Parallelism = n
	}
	if v := os.Getenv(envExecCache); v != "" {
		cfg.ExecCachePath = v
	}
	if v := os.Getenv(envRootCACerts); v != "" {
		cfg.RootCACertsPath = v
	}
	if v := os.Getenv(envOAuthToken); v != "" {
		cfg.OAuthTokenPath = v
	}

	return cfg, nil
}

// CoreOptions translates the configuration into engine constructor options.
func (c Config) CoreOptions() core.Options {
	cleanup := true
	if c.CleanupLocalDirs != nil {
		cleanup = *c.CleanupLocalDirs
	}
	return core.Options{
		BuildRoot:      c.BuildRoot,
		IgnorePatterns: c.IgnorePatterns,
		WorkDir:        c.WorkDir,
		LocalStoreDir:  c.StoreDir,

		RemoteStoreServers:     c.StoreServers,
		RemoteStoreThreadCount: c.StoreThreadCount,
		RemoteStoreChunkBytes:  c.StoreChunkBytes,
		RemoteStoreRPCRetries:  c.StoreRPCRetries,

		RemoteExecutionServer:    c.ExecServer,
		RemoteCacheNamespace:     c.CacheNamespace,
		RemoteInstanceName:       c.InstanceName,
		RemoteExtraPlatformProps: c.PlatformProps,

		RootCACertsPath:      c.RootCACertsPath,
		OAuthBearerTokenPath: c.OAuthTokenPath,

		Parallelism:      c.Parallelism,
		CleanupLocalDirs: cleanup,
		ExecCachePath:    c.ExecCachePath,
	}
}

// Level parses the configured log level, defaulting to info.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
