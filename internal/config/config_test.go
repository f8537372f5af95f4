package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every CONFIGKV_* variable so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied with an empty environment.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want 64", cfg.Server.MaxConns)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendSQLite)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
	if cfg.Remote.Enabled {
		t.Error("Remote.Enabled = true, want false")
	}
	if cfg.Remote.Endpoint != "http://127.0.0.1:9100" {
		t.Errorf("Remote.Endpoint = %q", cfg.Remote.Endpoint)
	}
	if cfg.Remote.Timeout() != 200*time.Millisecond {
		t.Errorf("Remote.Timeout() = %v, want 200ms", cfg.Remote.Timeout())
	}
	if cfg.History.Keep != 1000 || cfg.History.PruneInterval() != 5*time.Minute {
		t.Errorf("History = %+v, want keep 1000 every 5m", cfg.History)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.API.Token != "" {
		t.Errorf("API.Token = %q, want empty", cfg.API.Token)
	}
}

// TestEnvOverride verifies that environment variables override defaults.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_SERVER_PORT", "9200")
	t.Setenv("CONFIGKV_STORAGE_BACKEND", "memory")
	t.Setenv("CONFIGKV_REMOTE_ENABLED", "true")
	t.Setenv("CONFIGKV_REMOTE_ENDPOINT", "http://10.0.0.5:9100")
	t.Setenv("CONFIGKV_REMOTE_TIMEOUT_MS", "750")
	t.Setenv("CONFIGKV_API_TOKEN", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if !cfg.Remote.Enabled {
		t.Error("Remote.Enabled = false, want true")
	}
	if cfg.Remote.Endpoint != "http://10.0.0.5:9100" {
		t.Errorf("Remote.Endpoint = %q", cfg.Remote.Endpoint)
	}
	if cfg.Remote.Timeout() != 750*time.Millisecond {
		t.Errorf("Remote.Timeout() = %v, want 750ms", cfg.Remote.Timeout())
	}
	if cfg.API.Token != "s3cret" {
		t.Errorf("API.Token = %q", cfg.API.Token)
	}
}

// TestInvalidIntKeepsDefault verifies a malformed number is ignored with a warning.
func TestInvalidIntKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_SERVER_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want default 9100", cfg.Server.Port)
	}
}

func TestNonPositiveTimeoutFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_REMOTE_TIMEOUT_MS", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.Timeout() != 200*time.Millisecond {
		t.Errorf("Remote.Timeout() = %v, want 200ms", cfg.Remote.Timeout())
	}
}

func TestInvalidBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_STORAGE_BACKEND", "etcd")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("error = %q, want it to mention storage.backend", err.Error())
	}
}

func TestSettingsHidesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_API_TOKEN", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range Settings(cfg) {
		if st.Key == "api.token" || st.Value == "s3cret" {
			t.Errorf("Settings exposed secret: %+v", st)
		}
	}
	if got := len(Settings(cfg)); got != len(specs)-1 {
		t.Errorf("Settings returned %d keys, want %d", got, len(specs)-1)
	}
}

func TestSettingsSource(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_SERVER_PORT", "9200")
	t.Setenv("CONFIGKV_HISTORY_KEEP", "oops")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	got := Settings(cfg)
	for i := 1; i < len(got); i++ {
		if got[i-1].Key >= got[i].Key {
			t.Fatalf("Settings not sorted: %q before %q", got[i-1].Key, got[i].Key)
		}
	}
	want := map[string]string{
		"server.port":  SourceEnv,
		"history.keep": SourceDefault, // unparsable value keeps the default
		"log.level":    SourceDefault,
	}
	for _, st := range got {
		if src, ok := want[st.Key]; ok && st.Source != src {
			t.Errorf("%s: source = %q, want %q", st.Key, st.Source, src)
		}
		if st.Key == "server.port" && st.Value != "9200" {
			t.Errorf("server.port = %q, want 9200", st.Value)
		}
	}
}

func TestNonPositiveMaxConnsRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIGKV_SERVER_MAX_CONNS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for server.max_conns = 0")
	}
}

func TestRemoteCacheTTL(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Remote.CacheTTL(); got != 0 {
		t.Errorf("default CacheTTL = %v, want 0", got)
	}

	t.Setenv("CONFIGKV_REMOTE_CACHE_TTL_MS", "1500")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Remote.CacheTTL(); got != 1500*time.Millisecond {
		t.Errorf("CacheTTL = %v, want 1.5s", got)
	}
}
