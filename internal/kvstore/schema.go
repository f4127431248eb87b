// Package kvstore is a small document store over SQLite: named
// collections keyed by a declared primary-key field, secondary indexes
// over one document field, and a schema version upgraded through a
// caller-supplied callback.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnknownCollection is returned for operations on a collection that
// the schema never created.
var ErrUnknownCollection = errors.New("kvstore: unknown collection")

const metaSchemaSQL = `
CREATE TABLE IF NOT EXISTS kv_collections (
	name     TEXT PRIMARY KEY,
	key_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_indexes (
	collection TEXT NOT NULL,
	name       TEXT NOT NULL,
	field      TEXT NOT NULL,
	PRIMARY KEY (collection, name)
);
`

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UpgradeFunc creates or migrates collections. It runs inside a single
// transaction, only when the stored version is lower than the requested
// one, and should check for existence before creating anything.
type UpgradeFunc func(s *Schema, oldVersion, newVersion int) error

// Store is an open database handle. It is safe for concurrent use; each
// primitive operation is one atomic statement.
type Store struct {
	conn *sql.DB
	meta *metadata
}

type metadata struct {
	keyPaths map[string]string            // collection -> primary key field
	indexes  map[string]map[string]string // collection -> index -> field
}

// Open opens (or creates) the database at path and brings its schema to
// version by calling upgrade when needed. Opening a database whose stored
// version is newer than version fails.
func Open(ctx context.Context, path string, version int, upgrade UpgradeFunc) (*Store, error) {
	if path == "" {
		return nil, errors.New("kvstore: open: path is empty")
	}
	if version < 1 {
		return nil, fmt.Errorf("kvstore: open: invalid version %d", version)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("kvstore: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kvstore: ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, metaSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kvstore: apply meta schema: %w", err)
	}
	if err := migrate(ctx, conn, version, upgrade); err != nil {
		conn.Close()
		return nil, err
	}
	meta, err := loadMetadata(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{conn: conn, meta: meta}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("kvstore: ping: %w", err)
	}
	return nil
}

// Version returns the stored schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	return storedVersion(ctx, s.conn)
}

func storedVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("kvstore: read user_version: %w", err)
	}
	return v, nil
}

func migrate(ctx context.Context, conn *sql.DB, version int, upgrade UpgradeFunc) error {
	old, err := storedVersion(ctx, conn)
	if err != nil {
		return err
	}
	if old > version {
		return fmt.Errorf("kvstore: stored version %d is newer than requested %d", old, version)
	}
	if old == version {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: begin upgrade: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if upgrade != nil {
		if err := upgrade(&Schema{ctx: ctx, tx: tx}, old, version); err != nil {
			return fmt.Errorf("kvstore: upgrade %d -> %d: %w", old, version, err)
		}
	}
	// PRAGMA does not accept bound parameters; version is an int.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("kvstore: write user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit upgrade: %w", err)
	}
	return nil
}

func loadMetadata(ctx context.Context, conn *sql.DB) (*metadata, error) {
	m := &metadata{
		keyPaths: make(map[string]string),
		indexes:  make(map[string]map[string]string),
	}

	rows, err := conn.QueryContext(ctx, `SELECT name, key_path FROM kv_collections`)
	if err != nil {
		return nil, fmt.Errorf("kvstore: load collections: %w", err)
	}
	for rows.Next() {
		var name, keyPath string
		if err := rows.Scan(&name, &keyPath); err != nil {
			rows.Close()
			return nil, err
		}
		m.keyPaths[name] = keyPath
		m.indexes[name] = make(map[string]string)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.QueryContext(ctx, `SELECT collection, name, field FROM kv_indexes`)
	if err != nil {
		return nil, fmt.Errorf("kvstore: load indexes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var coll, name, field string
		if err := rows.Scan(&coll, &name, &field); err != nil {
			return nil, err
		}
		if idx, ok := m.indexes[coll]; ok {
			idx[name] = field
		}
	}
	return m, rows.Err()
}

// Schema is handed to an UpgradeFunc to inspect and extend the layout.
type Schema struct {
	ctx context.Context
	tx  *sql.Tx
}

// HasCollection reports whether the collection exists.
func (s *Schema) HasCollection(name string) (bool, error) {
	var n int
	err := s.tx.QueryRowContext(s.ctx, `SELECT count(*) FROM kv_collections WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("kvstore: has collection %s: %w", name, err)
	}
	return n > 0, nil
}

// CreateCollection creates a collection keyed by the keyPath field.
func (s *Schema) CreateCollection(name, keyPath string) error {
	if !identRe.MatchString(name) || !identRe.MatchString(keyPath) {
		return fmt.Errorf("kvstore: create collection: invalid name %q or key path %q", name, keyPath)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		pk  TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	)`, tableName(name))
	if _, err := s.tx.ExecContext(s.ctx, ddl); err != nil {
		return fmt.Errorf("kvstore: create collection %s: %w", name, err)
	}
	if _, err := s.tx.ExecContext(s.ctx,
		`INSERT OR REPLACE INTO kv_collections (name, key_path) VALUES (?, ?)`, name, keyPath); err != nil {
		return fmt.Errorf("kvstore: register collection %s: %w", name, err)
	}
	return nil
}

// HasIndex reports whether the named index exists on the collection.
func (s *Schema) HasIndex(collection, name string) (bool, error) {
	var n int
	err := s.tx.QueryRowContext(s.ctx,
		`SELECT count(*) FROM kv_indexes WHERE collection = ? AND name = ?`, collection, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("kvstore: has index %s.%s: %w", collection, name, err)
	}
	return n > 0, nil
}

// CreateIndex adds a non-unique secondary index over field.
func (s *Schema) CreateIndex(collection, name, field string) error {
	if !identRe.MatchString(name) || !identRe.MatchString(field) {
		return fmt.Errorf("kvstore: create index: invalid name %q or field %q", name, field)
	}
	ok, err := s.HasCollection(collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
		indexName(collection, name), tableName(collection), fieldExpr(field))
	if _, err := s.tx.ExecContext(s.ctx, ddl); err != nil {
		return fmt.Errorf("kvstore: create index %s.%s: %w", collection, name, err)
	}
	if _, err := s.tx.ExecContext(s.ctx,
		`INSERT OR REPLACE INTO kv_indexes (collection, name, field) VALUES (?, ?, ?)`,
		collection, name, field); err != nil {
		return fmt.Errorf("kvstore: register index %s.%s: %w", collection, name, err)
	}
	return nil
}

func tableName(collection string) string {
	return "c_" + collection
}

func indexName(collection, name string) string {
	return "ix_" + collection + "_" + name
}

func fieldExpr(field string) string {
	return fmt.Sprintf("json_extract(doc, '$.%s')", field)
}
