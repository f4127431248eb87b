package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is a typed view of one collection over a Querier.
type Collection[T any] struct {
	q    Querier
	name string
}

// NewCollection binds the named collection to q.
func NewCollection[T any](q Querier, name string) Collection[T] {
	return Collection[T]{q: q, name: name}
}

// Get returns the record under key, or nil when absent.
func (c Collection[T]) Get(ctx context.Context, key string) (*T, error) {
	doc, ok, err := c.q.Get(ctx, c.name, key)
	if err != nil || !ok {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("kvstore: decode %s/%s: %w", c.name, key, err)
	}
	return &v, nil
}

// Put upserts v.
func (c Collection[T]) Put(ctx context.Context, v *T) error {
	return c.q.Put(ctx, c.name, v)
}

// Delete removes the record under key.
func (c Collection[T]) Delete(ctx context.Context, key string) error {
	return c.q.Delete(ctx, c.name, key)
}

// All returns every record.
func (c Collection[T]) All(ctx context.Context) ([]T, error) {
	docs, err := c.q.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return c.decode(docs)
}

// ByIndex returns the records whose indexed value falls in r.
func (c Collection[T]) ByIndex(ctx context.Context, index string, r Range) ([]T, error) {
	docs, err := c.q.GetAllByIndex(ctx, c.name, index, r)
	if err != nil {
		return nil, err
	}
	return c.decode(docs)
}

// Clear removes every record.
func (c Collection[T]) Clear(ctx context.Context) error {
	return c.q.Clear(ctx, c.name)
}

func (c Collection[T]) decode(docs [][]byte) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("kvstore: decode %s: %w", c.name, err)
		}
		out = append(out, v)
	}
	return out, nil
}
