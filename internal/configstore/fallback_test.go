package configstore

import (
	"errors"
	"testing"
)

func TestFallback_PrimaryHealthy(t *testing.T) {
	primary := NewMemoryBackend()
	secondary := NewMemoryBackend()
	b := Fallback(primary, secondary)

	if err := b.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := primary.Get("k"); !ok {
		t.Error("primary did not receive write")
	}
	if _, ok, _ := secondary.Get("k"); ok {
		t.Error("secondary received write while primary was healthy")
	}
}

func TestFallback_PrimaryDown(t *testing.T) {
	secondary := NewMemoryBackend()
	b := Fallback(failingBackend{err: errors.New("connection refused")}, secondary)

	s := New()
	if err := s.SetClient(b); err != nil {
		t.Fatal(err)
	}

	if err := s.Set("db.host", "127.0.0.1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("db.host")
	if err != nil || !ok || v != "127.0.0.1" {
		t.Errorf("Get = (%q, %v, %v), want value from secondary", v, ok, err)
	}
	all, err := s.All()
	if err != nil || all["db.host"] != "127.0.0.1" {
		t.Errorf("All = (%v, %v)", all, err)
	}
	removed, err := s.Remove("db.host")
	if err != nil || !removed {
		t.Errorf("Remove = (%v, %v), want (true, nil)", removed, err)
	}
}

func TestFallback_DeleteUnsupported(t *testing.T) {
	b := Fallback(newArrayClient(), NewMemoryBackend())
	d, ok := b.(Deleter)
	if !ok {
		t.Fatal("fallback backend does not implement Deleter")
	}
	if _, err := d.Delete("k"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Delete error = %v, want ErrUnsupported", err)
	}
}

func TestFallback_BothDown(t *testing.T) {
	second := errors.New("second")
	b := Fallback(failingBackend{err: errors.New("first")}, failingBackend{err: second})

	if err := b.Set("k", "v"); err != second {
		t.Errorf("Set error = %v, want secondary error", err)
	}
}

func TestBackendName(t *testing.T) {
	if got := BackendName(NewMemoryBackend()); got != "memory" {
		t.Errorf("BackendName(memory) = %q", got)
	}
	if got := BackendName(failingBackend{}); got != "configstore.failingBackend" {
		t.Errorf("BackendName(failingBackend) = %q", got)
	}
	fb := Fallback(NewMemoryBackend(), failingBackend{})
	if got := BackendName(fb); got != "fallback(memory, configstore.failingBackend)" {
		t.Errorf("BackendName(fallback) = %q", got)
	}
}
