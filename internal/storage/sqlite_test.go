package storage

import (
	"strconv"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least two applied migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestSetGetAll(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("db.host", "127.0.0.1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("db.port", "5432"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("db.port", "6432"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := s.Get("db.port")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != "6432" {
		t.Errorf("Get(db.port) = (%q, %v), want (%q, true)", v, ok, "6432")
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all["db.host"] != "127.0.0.1" || all["db.port"] != "6432" {
		t.Errorf("All() = %v", all)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	v, ok, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || v != "" {
		t.Errorf("Get(missing) = (%q, %v), want (\"\", false)", v, ok)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	s.Set("k", "v")

	removed, err := s.Delete("k")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Error("Delete(k) = false, want true")
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("key still present after Delete")
	}

	removed, err = s.Delete("k")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if removed {
		t.Error("second Delete(k) = true, want false")
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Set("services.payment.retries", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	v, ok, err := s2.Get("services.payment.retries")
	if err != nil || !ok || v != "1" {
		t.Errorf("Get after reopen = (%q, %v, %v), want (\"1\", true, nil)", v, ok, err)
	}
}

func TestHistory(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	s.Set("a", "1")
	s.Set("a", "2")
	s.Set("b", "x")
	s.Delete("a")
	s.Delete("a") // no-op, must not be recorded

	changes, err := s.History("a", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("History(a) returned %d changes, want 3: %+v", len(changes), changes)
	}

	del := changes[0]
	if del.Op != OpDelete || del.OldValue == nil || *del.OldValue != "2" || del.NewValue != nil {
		t.Errorf("newest change = %+v, want delete of value 2", del)
	}
	upd := changes[1]
	if upd.Op != OpSet || upd.OldValue == nil || *upd.OldValue != "1" || upd.NewValue == nil || *upd.NewValue != "2" {
		t.Errorf("second change = %+v, want set 1 -> 2", upd)
	}
	first := changes[2]
	if first.OldValue != nil {
		t.Errorf("first change OldValue = %q, want nil", *first.OldValue)
	}
	if !first.ChangedAt.Equal(base.Add(time.Second)) {
		t.Errorf("first change ChangedAt = %v, want %v", first.ChangedAt, base.Add(time.Second))
	}
	if first.ID == "" || first.ID == upd.ID {
		t.Errorf("change IDs not unique: %q, %q", first.ID, upd.ID)
	}

	all, err := s.History("", 2)
	if err != nil {
		t.Fatalf("History(all): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("History(\"\", 2) returned %d changes, want 2", len(all))
	}
	if all[0].Key != "a" || all[1].Key != "b" {
		t.Errorf("History order = [%s %s], want [a b]", all[0].Key, all[1].Key)
	}
}

func TestPruneHistory(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		s.Set("k", strconv.Itoa(i))
	}

	n, err := s.PruneHistory(2)
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if n != 3 {
		t.Errorf("pruned %d rows, want 3", n)
	}

	changes, _ := s.History("", 0)
	if len(changes) != 2 {
		t.Fatalf("%d rows left, want 2", len(changes))
	}
	if *changes[0].NewValue != "4" || *changes[1].NewValue != "3" {
		t.Errorf("kept wrong rows: %q, %q", *changes[0].NewValue, *changes[1].NewValue)
	}

	// Sequence keeps growing after a prune.
	s.Set("k", "5")
	changes, _ = s.History("", 1)
	if *changes[0].NewValue != "5" {
		t.Errorf("newest after prune = %q, want 5", *changes[0].NewValue)
	}

	if n, _ := s.PruneHistory(0); n != 0 {
		t.Errorf("PruneHistory(0) removed %d rows", n)
	}
}
