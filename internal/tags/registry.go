// Package tags tracks tag definitions and their usage counters.
package tags

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/schema"
)

// Registry manages the tags collection. Usage updates are read-modify-write
// and only atomic with the caller's other writes when q is a *kvstore.Tx.
type Registry struct {
	tags kvstore.Collection[models.Tag]
}

// NewRegistry returns a registry over q.
func NewRegistry(q kvstore.Querier) *Registry {
	return &Registry{tags: kvstore.NewCollection[models.Tag](q, schema.Tags)}
}

// Normalize lowercases and trims a tag name and drops a leading '#'.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// AddOrGet registers name with usage 0 if it is not known yet and returns
// the stored tag. An empty colour means the default.
func (r *Registry) AddOrGet(ctx context.Context, name, colour string) (*models.Tag, error) {
	id := Normalize(name)
	if id == "" {
		return nil, apperr.Validation("tag name is required")
	}
	existing, err := r.tags.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("tags: add: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	if colour == "" {
		colour = models.DefaultTagColour
	}
	t := &models.Tag{ID: id, Colour: colour, Usage: 0}
	if err := r.tags.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("tags: add: %w", err)
	}
	return t, nil
}

// Get returns the tag, or nil when unknown.
func (r *Registry) Get(ctx context.Context, name string) (*models.Tag, error) {
	t, err := r.tags.Get(ctx, Normalize(name))
	if err != nil {
		return nil, fmt.Errorf("tags: get: %w", err)
	}
	return t, nil
}

// SetColour changes the display colour of a registered tag.
func (r *Registry) SetColour(ctx context.Context, name, colour string) (*models.Tag, error) {
	t, err := r.Get(ctx, name)
	if err != nil || t == nil {
		return nil, err
	}
	t.Colour = colour
	if err := r.tags.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("tags: set colour: %w", err)
	}
	return t, nil
}

// List returns every registered tag.
func (r *Registry) List(ctx context.Context) ([]models.Tag, error) {
	all, err := r.tags.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("tags: list: %w", err)
	}
	return all, nil
}

// Remove deletes a tag definition. Notes keep the name in their tag sets.
func (r *Registry) Remove(ctx context.Context, name string) error {
	if err := r.tags.Delete(ctx, Normalize(name)); err != nil {
		return fmt.Errorf("tags: remove: %w", err)
	}
	return nil
}

// IncrementUsage adds one to the usage counter. Unknown tags are ignored.
func (r *Registry) IncrementUsage(ctx context.Context, name string) error {
	return r.adjust(ctx, name, 1)
}

// DecrementUsage subtracts one from the usage counter, never going below
// zero. Unknown tags are ignored.
func (r *Registry) DecrementUsage(ctx context.Context, name string) error {
	return r.adjust(ctx, name, -1)
}

// SetUsage overwrites the usage counter. Unknown tags are ignored.
func (r *Registry) SetUsage(ctx context.Context, name string, usage int) error {
	t, err := r.Get(ctx, name)
	if err != nil || t == nil {
		return err
	}
	t.Usage = max(usage, 0)
	if err := r.tags.Put(ctx, t); err != nil {
		return fmt.Errorf("tags: set usage: %w", err)
	}
	return nil
}

func (r *Registry) adjust(ctx context.Context, name string, delta int) error {
	t, err := r.Get(ctx, name)
	if err != nil || t == nil {
		return err
	}
	next := max(t.Usage+delta, 0)
	if next == t.Usage {
		return nil
	}
	t.Usage = next
	if err := r.tags.Put(ctx, t); err != nil {
		return fmt.Errorf("tags: adjust usage: %w", err)
	}
	return nil
}
