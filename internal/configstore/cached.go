package configstore

import (
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// cachedBackend serves reads from a snapshot of the wrapped backend's All()
// that is refreshed after ttl. Every write attempt goes straight through and
// drops the snapshot, failed ones included: a caller such as Fallback may
// have written the value somewhere else.
type cachedBackend struct {
	backend ConfigBackend
	clock   Clock
	ttl     time.Duration

	mu       sync.RWMutex
	snapshot map[string]string
	loadedAt time.Time
}

// Cached wraps b with a read-through snapshot cache. Changes made to b by
// anyone else become visible once the snapshot is older than ttl.
func Cached(b ConfigBackend, ttl time.Duration) ConfigBackend {
	return CachedWithClock(b, realClock{}, ttl)
}

// CachedWithClock is Cached with a custom clock (for testing).
func CachedWithClock(b ConfigBackend, clock Clock, ttl time.Duration) ConfigBackend {
	return &cachedBackend{backend: b, clock: clock, ttl: ttl}
}

func (c *cachedBackend) String() string {
	return fmt.Sprintf("cached(%s, %s)", BackendName(c.backend), c.ttl)
}

func (c *cachedBackend) fresh() bool {
	return c.snapshot != nil && c.clock.Now().Before(c.loadedAt.Add(c.ttl))
}

// load returns the current snapshot, refreshing it when stale. The returned
// map must not be modified.
func (c *cachedBackend) load() (map[string]string, error) {
	c.mu.RLock()
	if c.fresh() {
		m := c.snapshot
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fresh() {
		return c.snapshot, nil
	}

	m, err := c.backend.All()
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	c.snapshot = m
	c.loadedAt = c.clock.Now()
	return m, nil
}

func (c *cachedBackend) invalidate() {
	c.snapshot = nil
}

func (c *cachedBackend) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.invalidate()

	return c.backend.Set(key, value)
}

func (c *cachedBackend) Get(key string) (string, bool, error) {
	m, err := c.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (c *cachedBackend) All() (map[string]string, error) {
	m, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (c *cachedBackend) Delete(key string) (bool, error) {
	d, ok := c.backend.(Deleter)
	if !ok {
		return false, ErrUnsupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.invalidate()

	return d.Delete(key)
}
