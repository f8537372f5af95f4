package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed config backend. Every mutation is recorded in
// config_history alongside the entry itself.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "configkv.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: ":memory:" databases are per-connection, and it
	// avoids "database is locked" between our own writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, path: dsn, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) String() string {
	return "sqlite(" + s.path + ")"
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Entries ---

// Set upserts key=value and records the change.
func (s *Store) Set(key, value string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := lookup(tx, key)
	if err != nil {
		return fmt.Errorf("reading %q: %w", key, err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`
		INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	); err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}

	if err := recordChange(tx, key, OpSet, old, &value, now); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the value for key; ok is false when the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config_entries WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// All returns every stored entry.
func (s *Store) All() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM config_entries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// Delete removes key and reports whether it existed. A change is recorded
// only when a row was removed.
func (s *Store) Delete(key string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := lookup(tx, key)
	if err != nil {
		return false, fmt.Errorf("reading %q: %w", key, err)
	}
	if old == nil {
		return false, nil
	}

	if _, err := tx.Exec("DELETE FROM config_entries WHERE key = ?", key); err != nil {
		return false, fmt.Errorf("deleting %q: %w", key, err)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	if err := recordChange(tx, key, OpDelete, old, nil, now); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func lookup(tx *sql.Tx, key string) (*string, error) {
	var v string
	err := tx.QueryRow("SELECT value FROM config_entries WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// --- History ---

func recordChange(tx *sql.Tx, key, op string, oldValue, newValue *string, changedAt string) error {
	_, err := tx.Exec(`
		INSERT INTO config_history (id, seq, key, op, old_value, new_value, changed_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM config_history), ?, ?, ?, ?, ?)`,
		uuid.New().String(), key, op, oldValue, newValue, changedAt,
	)
	if err != nil {
		return fmt.Errorf("recording %s of %q: %w", op, key, err)
	}
	return nil
}

// History returns recorded changes, newest first. An empty key lists changes
// for all keys. limit <= 0 means no limit.
func (s *Store) History(key string, limit int) ([]Change, error) {
	query := `SELECT id, key, op, old_value, new_value, changed_at FROM config_history`
	var args []any
	if key != "" {
		query += " WHERE key = ?"
		args = append(args, key)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Change
	for rows.Next() {
		var c Change
		var oldValue, newValue sql.NullString
		var changedAt string
		if err := rows.Scan(&c.ID, &c.Key, &c.Op, &oldValue, &newValue, &changedAt); err != nil {
			return nil, err
		}
		if oldValue.Valid {
			c.OldValue = &oldValue.String
		}
		if newValue.Valid {
			c.NewValue = &newValue.String
		}
		t, err := time.Parse(time.RFC3339Nano, changedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing changed_at for change %s: %w", c.ID, err)
		}
		c.ChangedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}

// PruneHistory deletes all but the newest keep history rows and reports how
// many were removed. keep <= 0 is a no-op.
func (s *Store) PruneHistory(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`
		DELETE FROM config_history
		WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM config_history) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}
