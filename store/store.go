// Package store persists the content model in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides persistence for repository data.
type Store struct {
	db *sql.DB
	q  querier
}

// Open opens (creating if needed) the SQLite database at path and
// initializes the schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps an in-memory
	// database alive for the life of the pool.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and initializes the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db, q: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn against a store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		handle TEXT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		handle TEXT,
		owning_collection TEXT REFERENCES collections(id) ON DELETE CASCADE,
		in_archive INTEGER NOT NULL DEFAULT 0,
		withdrawn INTEGER NOT NULL DEFAULT 0,
		discoverable INTEGER NOT NULL DEFAULT 1,
		last_modified TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata_values (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		schema_name TEXT NOT NULL,
		element TEXT NOT NULL,
		qualifier TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL,
		authority TEXT NOT NULL DEFAULT '',
		confidence INTEGER NOT NULL DEFAULT -1,
		place INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS bundles (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bitstreams (
		id TEXT PRIMARY KEY,
		bundle_id TEXT NOT NULL REFERENCES bundles(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		content BLOB
	);

	CREATE TABLE IF NOT EXISTS handles (
		handle TEXT PRIMARY KEY,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS harvested_collections (
		collection_id TEXT PRIMARY KEY REFERENCES collections(id) ON DELETE CASCADE,
		harvest_type INTEGER NOT NULL DEFAULT 0,
		oai_source TEXT NOT NULL DEFAULT '',
		oai_set_id TEXT NOT NULL DEFAULT '',
		metadata_config_id TEXT NOT NULL DEFAULT '',
		harvest_message TEXT NOT NULL DEFAULT '',
		harvest_status INTEGER NOT NULL DEFAULT 0,
		harvest_start_time TEXT,
		last_harvested TEXT
	);

	CREATE TABLE IF NOT EXISTS harvested_items (
		item_id TEXT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
		collection_id TEXT NOT NULL,
		oai_id TEXT NOT NULL,
		harvest_date TEXT
	);

	CREATE TABLE IF NOT EXISTS dois (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doi TEXT NOT NULL UNIQUE,
		item_id TEXT,
		status INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_items_collection ON items(owning_collection);
	CREATE INDEX IF NOT EXISTS idx_metadata_item ON metadata_values(item_id);
	CREATE INDEX IF NOT EXISTS idx_metadata_field ON metadata_values(schema_name, element, qualifier, value);
	CREATE INDEX IF NOT EXISTS idx_harvested_items_oai ON harvested_items(oai_id, collection_id);
	CREATE INDEX IF NOT EXISTS idx_dois_item ON dois(item_id);
	`
	_, err := s.q.ExecContext(ctx, schema)
	return err
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		// rows written before the fixed-width layout
		if t, err = time.Parse(time.RFC3339Nano, ns.String); err != nil {
			return time.Time{}
		}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
