package configstore

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryBackend_Delete(t *testing.T) {
	m := NewMemoryBackend()
	m.Set("k", "v")

	removed, err := m.Delete("k")
	if err != nil || !removed {
		t.Fatalf("Delete(k) = (%v, %v), want (true, nil)", removed, err)
	}
	if _, ok, _ := m.Get("k"); ok {
		t.Error("key still present after Delete")
	}
	removed, _ = m.Delete("k")
	if removed {
		t.Error("Delete of missing key reported removal")
	}
}

func TestStore_ConcurrentMixedOps(t *testing.T) {
	s := New()

	const (
		workers  = 20
		opsPerW  = 500
		keySpace = 50
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerW; i++ {
				k := fmt.Sprintf("k-%d", (id*opsPerW+i)%keySpace)
				switch i % 4 {
				case 0:
					if err := s.Set(k, fmt.Sprintf("v-%d-%d", id, i)); err != nil {
						t.Errorf("Set: %v", err)
						return
					}
				case 1:
					if _, _, err := s.Get(k); err != nil {
						t.Errorf("Get: %v", err)
						return
					}
				case 2:
					if _, err := s.All(); err != nil {
						t.Errorf("All: %v", err)
						return
					}
				case 3:
					if _, err := s.Remove(k); err != nil {
						t.Errorf("Remove: %v", err)
						return
					}
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("test timed out - possible deadlock")
	}
}
