package configstore

import (
	"fmt"
	"log/slog"
)

type fallbackBackend struct {
	primary   ConfigBackend
	secondary ConfigBackend
	logger    *slog.Logger
}

// Fallback returns a backend that serves each call from primary and, when
// primary fails, retries the same call against secondary. The two backends
// are not reconciled: a write that lands on secondary stays there.
func Fallback(primary, secondary ConfigBackend) ConfigBackend {
	return &fallbackBackend{
		primary:   primary,
		secondary: secondary,
		logger:    slog.Default(),
	}
}

// BackendName describes b for logs: its String method if it has one,
// otherwise its type.
func BackendName(b ConfigBackend) string {
	if s, ok := b.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", b)
}

func (f *fallbackBackend) String() string {
	return "fallback(" + BackendName(f.primary) + ", " + BackendName(f.secondary) + ")"
}

func (f *fallbackBackend) warn(op, key string, err error) {
	f.logger.Warn("primary config backend failed, using fallback",
		"op", op,
		"key", key,
		"primary", BackendName(f.primary),
		"error", err,
	)
}

func (f *fallbackBackend) Set(key, value string) error {
	err := f.primary.Set(key, value)
	if err == nil {
		return nil
	}
	f.warn("set", key, err)
	return f.secondary.Set(key, value)
}

func (f *fallbackBackend) Get(key string) (string, bool, error) {
	v, ok, err := f.primary.Get(key)
	if err == nil {
		return v, ok, nil
	}
	f.warn("get", key, err)
	return f.secondary.Get(key)
}

func (f *fallbackBackend) All() (map[string]string, error) {
	m, err := f.primary.All()
	if err == nil {
		return m, nil
	}
	f.warn("all", "", err)
	return f.secondary.All()
}

func (f *fallbackBackend) Delete(key string) (bool, error) {
	pd, ok := f.primary.(Deleter)
	if !ok {
		return false, ErrUnsupported
	}
	removed, err := pd.Delete(key)
	if err == nil {
		return removed, nil
	}
	f.warn("delete", key, err)
	sd, ok := f.secondary.(Deleter)
	if !ok {
		return false, err
	}
	return sd.Delete(key)
}
