package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Querier is the set of primitive operations shared by *Store and *Tx.
type Querier interface {
	// Get returns the raw document stored under key; ok is false when absent.
	Get(ctx context.Context, collection, key string) (doc []byte, ok bool, err error)
	// Put upserts record by the collection's primary-key field.
	Put(ctx context.Context, collection string, record any) error
	// Delete removes the record under key. Absent keys are not an error.
	Delete(ctx context.Context, collection, key string) error
	// GetAll returns every document in insertion order.
	GetAll(ctx context.Context, collection string) ([][]byte, error)
	// GetAllByIndex returns documents whose indexed value falls in r,
	// ordered by that value ascending.
	GetAllByIndex(ctx context.Context, collection, index string, r Range) ([][]byte, error)
	// Clear removes every document in the collection.
	Clear(ctx context.Context, collection string) error
}

var (
	_ Querier = (*Store)(nil)
	_ Querier = (*Tx)(nil)
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ops struct {
	db   dbtx
	meta *metadata
}

func (o ops) keyPath(collection string) (string, error) {
	kp, ok := o.meta.keyPaths[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return kp, nil
}

func (o ops) get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if _, err := o.keyPath(collection); err != nil {
		return nil, false, err
	}
	var doc string
	err := o.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE pk = ?`, tableName(collection)), key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get %s: %w", collection, err)
	}
	return []byte(doc), true, nil
}

func (o ops) put(ctx context.Context, collection string, record any) error {
	kp, err := o.keyPath(collection)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kvstore: put %s: encode: %w", collection, err)
	}
	key, err := extractKey(doc, kp)
	if err != nil {
		return fmt.Errorf("kvstore: put %s: %w", collection, err)
	}
	_, err = o.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (pk, doc) VALUES (?, ?)
		ON CONFLICT(pk) DO UPDATE SET doc = excluded.doc
	`, tableName(collection)), key, string(doc))
	if err != nil {
		return fmt.Errorf("kvstore: put %s: %w", collection, err)
	}
	return nil
}

func (o ops) delete(ctx context.Context, collection, key string) error {
	if _, err := o.keyPath(collection); err != nil {
		return err
	}
	if _, err := o.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE pk = ?`, tableName(collection)), key); err != nil {
		return fmt.Errorf("kvstore: delete %s: %w", collection, err)
	}
	return nil
}

func (o ops) getAll(ctx context.Context, collection string) ([][]byte, error) {
	if _, err := o.keyPath(collection); err != nil {
		return nil, err
	}
	return o.query(ctx, collection, fmt.Sprintf(`SELECT doc FROM %s ORDER BY rowid`, tableName(collection)))
}

func (o ops) getAllByIndex(ctx context.Context, collection, index string, r Range) ([][]byte, error) {
	if _, err := o.keyPath(collection); err != nil {
		return nil, err
	}
	field, ok := o.meta.indexes[collection][index]
	if !ok {
		return nil, fmt.Errorf("kvstore: get by index: unknown index %s.%s", collection, index)
	}
	expr := fieldExpr(field)
	cond, args := r.where(expr)
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY %s, pk`, tableName(collection), cond, expr)
	return o.query(ctx, collection, q, args...)
}

func (o ops) clear(ctx context.Context, collection string) error {
	if _, err := o.keyPath(collection); err != nil {
		return err
	}
	if _, err := o.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, tableName(collection))); err != nil {
		return fmt.Errorf("kvstore: clear %s: %w", collection, err)
	}
	return nil
}

func (o ops) query(ctx context.Context, collection, q string, args ...any) ([][]byte, error) {
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("kvstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("kvstore: scan %s: %w", collection, err)
		}
		out = append(out, []byte(doc))
	}
	return out, rows.Err()
}

// extractKey reads the primary-key field from an encoded document.
func extractKey(doc []byte, keyPath string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return "", fmt.Errorf("record is not an object: %w", err)
	}
	raw, ok := fields[keyPath]
	if !ok {
		return "", fmt.Errorf("record has no key field %q", keyPath)
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil || key == "" {
		return "", fmt.Errorf("key field %q must be a non-empty string", keyPath)
	}
	return key, nil
}

func (s *Store) ops() ops { return ops{db: s.conn, meta: s.meta} }

// Get implements Querier.
func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	return s.ops().get(ctx, collection, key)
}

// Put implements Querier.
func (s *Store) Put(ctx context.Context, collection string, record any) error {
	return s.ops().put(ctx, collection, record)
}

// Delete implements Querier.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return s.ops().delete(ctx, collection, key)
}

// GetAll implements Querier.
func (s *Store) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	return s.ops().getAll(ctx, collection)
}

// GetAllByIndex implements Querier.
func (s *Store) GetAllByIndex(ctx context.Context, collection, index string, r Range) ([][]byte, error) {
	return s.ops().getAllByIndex(ctx, collection, index, r)
}

// Clear implements Querier.
func (s *Store) Clear(ctx context.Context, collection string) error {
	return s.ops().clear(ctx, collection)
}
