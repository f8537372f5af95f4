package config

import (
	"fmt"
	"time"
)

// Storage backends selectable via storage.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

const defaultRemoteTimeout = 200 * time.Millisecond

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Remote  RemoteConfig
	History HistoryConfig
	Log     LogConfig
	API     APIConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type RemoteConfig struct {
	Enabled    bool
	Endpoint   string
	TimeoutMS  int
	CacheTTLMS int // 0 disables the read cache
}

// Timeout returns the per-call deadline for the remote backend.
// Non-positive values fall back to 200ms.
func (r RemoteConfig) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return defaultRemoteTimeout
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// CacheTTL returns how long remote reads may be served from a snapshot.
// Zero means no caching.
func (r RemoteConfig) CacheTTL() time.Duration {
	if r.CacheTTLMS <= 0 {
		return 0
	}
	return time.Duration(r.CacheTTLMS) * time.Millisecond
}

// HistoryConfig controls pruning of the SQLite change history by serve.
type HistoryConfig struct {
	Keep           int // rows to keep; 0 keeps everything
	PruneIntervalS int
}

// PruneInterval returns the pause between prune runs.
func (h HistoryConfig) PruneInterval() time.Duration {
	return time.Duration(h.PruneIntervalS) * time.Second
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     9100,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			DataDir: defaultDataDir(),
		},
		Remote: RemoteConfig{
			Endpoint:  "http://127.0.0.1:9100",
			TimeoutMS: int(defaultRemoteTimeout / time.Millisecond),
		},
		History: HistoryConfig{
			Keep:           1000,
			PruneIntervalS: 300,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the program configuration from defaults and CONFIGKV_*
// environment variables. It is the single startup check: callers must not
// touch a config store when it fails.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage.backend %q: want %q or %q", cfg.Storage.Backend, BackendMemory, BackendSQLite)
	}
	if cfg.Storage.Backend == BackendSQLite && cfg.Storage.DataDir == "" {
		return fmt.Errorf("missing required config: storage.data_dir (set CONFIGKV_STORAGE_DATA_DIR)")
	}
	if cfg.Remote.Enabled && cfg.Remote.Endpoint == "" {
		return fmt.Errorf("missing required config: remote.endpoint (set CONFIGKV_REMOTE_ENDPOINT)")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.History.Keep < 0 {
		return fmt.Errorf("invalid history.keep %d: must not be negative", cfg.History.Keep)
	}
	if cfg.Server.MaxConns <= 0 {
		return fmt.Errorf("invalid server.max_conns %d: must be positive", cfg.Server.MaxConns)
	}
	return nil
}
