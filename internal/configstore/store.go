// Package configstore holds flat string key/value configuration and delegates
// every operation to a single, swappable ConfigBackend.
package configstore

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrNilBackend is returned by SetClient when given a nil backend.
	ErrNilBackend = errors.New("configstore: backend is nil")
	// ErrUnsupported is returned when the active backend lacks a capability.
	ErrUnsupported = errors.New("configstore: operation not supported by backend")
)

// Store is a key/value configuration store. A new Store keeps entries in a
// private MemoryBackend until SetClient installs a different backend.
//
// Installing a backend replaces the previous one outright: entries written
// before SetClient are not copied over and stop being visible. Callers that
// want a custom backend should install it before the first Set.
type Store struct {
	mu      sync.RWMutex
	backend ConfigBackend
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for backend installation events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Store backed by a fresh MemoryBackend.
func New(opts ...Option) *Store {
	s := &Store{
		backend: NewMemoryBackend(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClient installs b as the backend for all subsequent calls.
// There is no way to go back to the internal map once a backend is installed.
func (s *Store) SetClient(b ConfigBackend) error {
	if b == nil {
		return ErrNilBackend
	}
	s.mu.Lock()
	s.backend = b
	s.mu.Unlock()

	s.logger.Debug("config backend installed", "backend", BackendName(b))
	return nil
}

// Backend returns the active backend.
func (s *Store) Backend() ConfigBackend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Set stores value under key. Backend errors are returned as is.
func (s *Store) Set(key, value string) error {
	return s.Backend().Set(key, value)
}

// Get returns the value stored for key. ok is false if the key is absent.
func (s *Store) Get(key string) (val string, ok bool, err error) {
	return s.Backend().Get(key)
}

// GetOr returns the value stored for key, or def if the key is absent.
func (s *Store) GetOr(key, def string) (string, error) {
	v, ok, err := s.Backend().Get(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// All returns a copy of every entry held by the active backend. Changing the
// returned map does not affect the store.
func (s *Store) All() (map[string]string, error) {
	m, err := s.Backend().All()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// Has reports whether key is present.
func (s *Store) Has(key string) (bool, error) {
	_, ok, err := s.Backend().Get(key)
	return ok, err
}

// Remove deletes key from the active backend and reports whether it existed.
func (s *Store) Remove(key string) (bool, error) {
	d, ok := s.Backend().(Deleter)
	if !ok {
		return false, ErrUnsupported
	}
	return d.Delete(key)
}
