package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CONFIGKV_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "CONFIGKV_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "storage.backend", typ: kString, env: "CONFIGKV_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CONFIGKV_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "remote.enabled", typ: kBool, env: "CONFIGKV_REMOTE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Remote.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Remote.Enabled },
	},
	{
		key: "remote.endpoint", typ: kString, env: "CONFIGKV_REMOTE_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Remote.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.Endpoint },
	},
	{
		key: "remote.timeout_ms", typ: kInt, env: "CONFIGKV_REMOTE_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.Remote.TimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Remote.TimeoutMS },
	},
	{
		key: "remote.cache_ttl_ms", typ: kInt, env: "CONFIGKV_REMOTE_CACHE_TTL_MS",
		apply:   func(cfg *Config, v any) { cfg.Remote.CacheTTLMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Remote.CacheTTLMS },
	},
	{
		key: "history.keep", typ: kInt, env: "CONFIGKV_HISTORY_KEEP",
		apply:   func(cfg *Config, v any) { cfg.History.Keep = v.(int) },
		extract: func(cfg Config) any { return cfg.History.Keep },
	},
	{
		key: "history.prune_interval_s", typ: kInt, env: "CONFIGKV_HISTORY_PRUNE_INTERVAL_S",
		apply:   func(cfg *Config, v any) { cfg.History.PruneIntervalS = v.(int) },
		extract: func(cfg Config) any { return cfg.History.PruneIntervalS },
	},
	{
		key: "log.level", typ: kString, env: "CONFIGKV_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "CONFIGKV_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
