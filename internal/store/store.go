package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// runLogPragmas are set on every connection. The run log is written by a
// single frame loop while trace and replay may read the same file, so WAL
// keeps readers off the writer's lock.
var runLogPragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// indexMigrations[i] moves a run log from user_version i to i+1.
var indexMigrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_reports_node ON reports(run_id, node, frame)`,
}

// Store is the run log: runs, per-frame schedules and their reports and
// diagnostics.
type Store struct {
	db *sql.DB
}

// Open opens the run log at path, creating it on first use. Opening an
// existing log brings it to the current index version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	// One connection: frames are appended in order and :memory: logs must
	// not be split across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range runLogPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return migrateIndexes(db)
}

func migrateIndexes(db *sql.DB) error {
	version, err := pragmaValue(db, "user_version")
	if err != nil {
		return err
	}
	var from int
	if _, err := fmt.Sscan(version, &from); err != nil {
		return fmt.Errorf("user_version %q: %w", version, err)
	}
	for v := from; v < len(indexMigrations); v++ {
		if _, err := db.Exec(indexMigrations[v]); err != nil {
			return fmt.Errorf("index migration %d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(indexMigrations))); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the run log. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Query runs a read against the run log. The caller closes the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func pragmaValue(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

func (s *Store) verifyPragma(name, expected string) error {
	value, err := pragmaValue(s.db, name)
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
