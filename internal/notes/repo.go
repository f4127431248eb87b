// Package notes implements the note repository over the notes collection.
package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/schema"
)

// Repo reads and writes notes. It is bound to a kvstore.Querier, so the
// same code runs against the store directly or inside a transaction.
type Repo struct {
	notes kvstore.Collection[models.Note]
	now   func() time.Time
	newID func() string
}

// Option configures a Repo.
type Option func(*Repo)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithIDGenerator overrides identity generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Repo) { r.newID = fn }
}

// NewRepo returns a repository over q.
func NewRepo(q kvstore.Querier, opts ...Option) *Repo {
	r := &Repo{
		notes: kvstore.NewCollection[models.Note](q, schema.Notes),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new note with a fresh identity and
// createdAt == updatedAt == now.
func (r *Repo) Create(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	now := models.Millis(r.now())
	n := &models.Note{
		ID:        r.newID(),
		Title:     in.Title,
		Content:   in.Content,
		Tags:      nonNil(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
		Backlinks: []string{},
	}
	if err := r.notes.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("notes: create: %w", err)
	}
	return n, nil
}

// Insert stores n as given, keeping its identity and timestamps. It is
// used by backup restores, which bring their own records.
func (r *Repo) Insert(ctx context.Context, n *models.Note) error {
	if n.ID == "" {
		return fmt.Errorf("notes: insert: empty id")
	}
	n.Tags = nonNil(n.Tags)
	n.Backlinks = []string{}
	if err := r.notes.Put(ctx, n); err != nil {
		return fmt.Errorf("notes: insert: %w", err)
	}
	return nil
}

// Update replaces the stored note with n. The note must already exist.
// The whole record is written: fields cleared in n are cleared in
// storage. The identity and createdAt are never changed and updatedAt
// always moves forward, by one millisecond if the clock has not.
func (r *Repo) Update(ctx context.Context, n *models.Note) (*models.Note, error) {
	existing, err := r.notes.Get(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("notes: update: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("notes: update %s: %w", n.ID, apperr.ErrNotFound)
	}

	updated := *n
	updated.CreatedAt = existing.CreatedAt
	updated.Tags = nonNil(n.Tags)
	updated.Backlinks = []string{}
	updated.UpdatedAt = models.Millis(r.now())
	if !updated.UpdatedAt.After(existing.UpdatedAt) {
		updated.UpdatedAt = existing.UpdatedAt.Add(time.Millisecond)
	}

	if err := r.notes.Put(ctx, &updated); err != nil {
		return nil, fmt.Errorf("notes: update: %w", err)
	}
	return &updated, nil
}

// Get returns the note, or nil when the identity is unknown.
func (r *Repo) Get(ctx context.Context, id string) (*models.Note, error) {
	n, err := r.notes.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("notes: get: %w", err)
	}
	return n, nil
}

// Delete removes the note. Unknown identities are not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.notes.Delete(ctx, id); err != nil {
		return fmt.Errorf("notes: delete: %w", err)
	}
	return nil
}

// ListAll returns every note in storage order.
func (r *Repo) ListAll(ctx context.Context) ([]models.Note, error) {
	all, err := r.notes.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	return all, nil
}

// ListByUpdated returns every note ordered by updatedAt ascending.
// Callers wanting newest first reverse the result.
func (r *Repo) ListByUpdated(ctx context.Context) ([]models.Note, error) {
	all, err := r.notes.ByIndex(ctx, schema.NotesByUpdated, kvstore.All())
	if err != nil {
		return nil, fmt.Errorf("notes: list by updated: %w", err)
	}
	return all, nil
}

// ListByTitle returns notes whose title equals title exactly.
func (r *Repo) ListByTitle(ctx context.Context, title string) ([]models.Note, error) {
	all, err := r.notes.ByIndex(ctx, schema.NotesByTitle, kvstore.Only(title))
	if err != nil {
		return nil, fmt.Errorf("notes: list by title: %w", err)
	}
	return all, nil
}

// Clear deletes every note.
func (r *Repo) Clear(ctx context.Context) error {
	if err := r.notes.Clear(ctx); err != nil {
		return fmt.Errorf("notes: clear: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
