package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/configkv/internal/api"
	"github.com/kalambet/configkv/internal/config"
	"github.com/kalambet/configkv/internal/configstore"
	"github.com/kalambet/configkv/internal/remote"
	"github.com/kalambet/configkv/internal/storage"
)

// storeHandle is an opened config store plus the pieces some commands need
// beyond the ConfigBackend contract.
type storeHandle struct {
	Store   *configstore.Store
	History api.HistoryReader // nil unless the local backend is SQLite
	DB      *storage.Store    // nil unless the local backend is SQLite
	Remote  *remote.Client    // nil unless remote.enabled

	closeFn func() error
}

func (h *storeHandle) Close() error {
	if h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

// openLocal opens the backend selected by storage.backend.
func openLocal(cfg config.Config) (configstore.ConfigBackend, *storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return configstore.NewMemoryBackend(), nil, nil
	case config.BackendSQLite:
		db, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		return db, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// openStore builds the store used by CLI commands. With remote.enabled the
// remote server (optionally behind a read cache) is consulted first and the
// local backend serves as fallback.
// The backend is installed before the store is handed out, so no entry is
// ever written to the store's internal map.
var openStore = func(cfg config.Config, useRemote bool) (*storeHandle, error) {
	local, db, err := openLocal(cfg)
	if err != nil {
		return nil, err
	}

	h := &storeHandle{}
	if db != nil {
		h.History = db
		h.DB = db
		h.closeFn = db.Close
	}

	active := local
	if useRemote && cfg.Remote.Enabled {
		rc, err := remote.New(cfg.Remote.Endpoint,
			remote.WithTimeout(cfg.Remote.Timeout()),
			remote.WithToken(cfg.API.Token),
		)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.Remote = rc
		var primary configstore.ConfigBackend = rc
		if ttl := cfg.Remote.CacheTTL(); ttl > 0 {
			primary = configstore.Cached(rc, ttl)
		}
		active = configstore.Fallback(primary, local)
	}

	h.Store = configstore.New()
	if err := h.Store.SetClient(active); err != nil {
		h.Close()
		return nil, err
	}
	slog.Debug("config store ready", "backend", configstore.BackendName(active))
	return h, nil
}

// withStore loads the program config, opens the store and runs fn.
func withStore(fn func(h *storeHandle) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	h, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()
	return fn(h)
}

var errNotFound = errors.New("not found")
