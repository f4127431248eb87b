package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/models"
)

// DefaultTitle is given to imported notes that carry content but no title.
const DefaultTitle = "Imported Note"

// Mode selects how candidates are written.
type Mode string

const (
	// ModeMerge adds every candidate as a new note next to the existing ones.
	ModeMerge Mode = "merge"
	// ModeReplace restores candidates with their own identities and
	// timestamps. Clearing the existing notes first is up to the caller.
	ModeReplace Mode = "replace"
)

// ParseMode maps a user supplied mode name to a Mode. The empty string
// means ModeMerge.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", apperr.Validation(fmt.Sprintf("unknown import mode %q", s))
	}
}

// Writer stores reconciled notes. *notes.Repo satisfies it.
type Writer interface {
	Create(ctx context.Context, in models.NoteInput) (*models.Note, error)
	Insert(ctx context.Context, n *models.Note) error
}

type reconciler struct {
	now   func() time.Time
	newID func() string
}

// Option configures Reconcile.
type Option func(*reconciler)

// WithClock overrides the time used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *reconciler) { r.now = now }
}

// WithIDGenerator overrides identity generation for candidates without a
// usable identity.
func WithIDGenerator(fn func() string) Option {
	return func(r *reconciler) { r.newID = fn }
}

// Reconcile writes candidates to w and returns how many were imported.
// Candidates with neither title nor content are skipped; other missing
// fields are defaulted. ModeMerge always creates new notes, so importing
// the same payload twice duplicates it. ModeReplace keeps a candidate's
// identity unless it is empty or already used earlier in the payload, and
// keeps its timestamps when present.
func Reconcile(ctx context.Context, w Writer, candidates []Candidate, mode Mode, opts ...Option) (int, error) {
	r := &reconciler{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}

	seen := make(map[string]struct{}, len(candidates))
	imported := 0
	for _, c := range candidates {
		if c.Title == "" && c.Content == "" {
			continue
		}
		title := c.Title
		if title == "" {
			title = DefaultTitle
		}
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}

		switch mode {
		case ModeMerge, "":
			if _, err := w.Create(ctx, models.NoteInput{Title: title, Content: c.Content, Tags: tags}); err != nil {
				return imported, fmt.Errorf("backup: reconcile: %w", err)
			}
		case ModeReplace:
			n := r.restore(c, title, tags, seen)
			if err := w.Insert(ctx, n); err != nil {
				return imported, fmt.Errorf("backup: reconcile: %w", err)
			}
		default:
			return imported, apperr.Validation(fmt.Sprintf("unknown import mode %q", mode))
		}
		imported++
	}
	return imported, nil
}

func (r *reconciler) restore(c Candidate, title string, tags []string, seen map[string]struct{}) *models.Note {
	id := c.ID
	if _, dup := seen[id]; id == "" || dup {
		id = r.newID()
	}
	seen[id] = struct{}{}

	now := models.Millis(r.now())
	created, updated := c.CreatedAt, c.UpdatedAt
	switch {
	case created.IsZero() && updated.IsZero():
		created, updated = now, now
	case created.IsZero():
		created = updated
	case updated.IsZero():
		updated = created
	}
	// A note is never updated before it was created.
	if updated.Before(created) {
		updated = created
	}
	return &models.Note{
		ID:        id,
		Title:     title,
		Content:   c.Content,
		Tags:      tags,
		CreatedAt: created,
		UpdatedAt: updated,
		Backlinks: []string{},
	}
}
