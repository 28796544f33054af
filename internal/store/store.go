// Package store is the sqlite storage layer. It enforces the natural-key
// uniqueness of count records, keeps surrogate identities stable across
// re-imports, and provides snapshot-consistent reads for aggregation runs.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/dvrpc/traffic-counts/internal/domain"
)

// Open opens (creating if necessary) the sqlite database at path and applies
// the connection pragmas. Use ":memory:" for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// Store wraps the database handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store. Call Migrate before first use.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// storageErr marks a low-level database failure so callers can match it with
// errors.Is(err, domain.ErrStorageUnavailable).
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrStorageUnavailable)
}
