package kvstore

import (
	"context"
	"fmt"
)

// Tx runs primitive operations inside one transaction spanning any
// number of collections. It is only valid inside the Update callback.
type Tx struct {
	o ops
}

// Update runs fn in a single transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: begin tx: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Tx{o: ops{db: sqlTx, meta: s.meta}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit: %w", err)
	}
	return nil
}

// Get implements Querier.
func (t *Tx) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	return t.o.get(ctx, collection, key)
}

// Put implements Querier.
func (t *Tx) Put(ctx context.Context, collection string, record any) error {
	return t.o.put(ctx, collection, record)
}

// Delete implements Querier.
func (t *Tx) Delete(ctx context.Context, collection, key string) error {
	return t.o.delete(ctx, collection, key)
}

// GetAll implements Querier.
func (t *Tx) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	return t.o.getAll(ctx, collection)
}

// GetAllByIndex implements Querier.
func (t *Tx) GetAllByIndex(ctx context.Context, collection, index string, r Range) ([][]byte, error) {
	return t.o.getAllByIndex(ctx, collection, index, r)
}

// Clear implements Querier.
func (t *Tx) Clear(ctx context.Context, collection string) error {
	return t.o.clear(ctx, collection)
}
