/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists medications and dose events as opaque JSON records keyed by
  collection and id. The engine never sees SQL; it only calls GetAll, Put
  and Remove.

KEY TABLES:
  records: (seq, collection, id, data, updated_at)
    seq keeps insertion order. An upsert on (collection, id) leaves seq
    untouched, so replacing a record keeps its position.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single open connection so
  ":memory:" databases are shared by every caller.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/doses.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := engine.NewLedger(store, time.Local)

SEE ALSO:
  - engine/store.go: Interface definition
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/dose-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_collection_seq
		ON records(collection, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (engine.Store interface)
// =============================================================================

// GetAll returns every record of a collection in insertion order.
func (s *Store) GetAll(ctx context.Context, collection string) ([]engine.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM records WHERE collection = ? ORDER BY seq ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []engine.Record
	for rows.Next() {
		var (
			id   string
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, engine.Record{ID: id, Data: []byte(data)})
	}

	return records, rows.Err()
}

// Put inserts a record or replaces it in place.
func (s *Store) Put(ctx context.Context, collection string, rec engine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO records (collection, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		collection,
		rec.ID,
		string(rec.Data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// Remove deletes a record. Missing ids are ignored.
func (s *Store) Remove(ctx context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE collection = ?",
		collection,
	).Scan(&count)
	return count, err
}
