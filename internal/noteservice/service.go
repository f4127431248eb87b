// Package noteservice coordinates the note repository, tag registry,
// settings and link graph behind one API used by every outer surface.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/content"
	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/linkgraph"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/notes"
	"github.com/starford/zettenote/internal/tags"
)

const (
	maxTitleLen = 500
	maxTagLen   = 64
)

// Note event kinds passed to a Publisher.
const (
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventDeleted  = "deleted"
	EventImported = "imported"
)

// Publisher is notified after a note mutation has been committed.
type Publisher interface {
	PublishNoteEvent(kind, id string)
}

// NoteRef is a short reference to a note.
type NoteRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NoteDetail is a note together with its rendered markup and the notes
// linking to it.
type NoteDetail struct {
	Note      models.Note `json:"note"`
	HTML      string      `json:"html"`
	Revision  string      `json:"revision"`
	Backlinks []NoteRef   `json:"backlinks"`
}

// Service is the application core. It is safe for concurrent use; every
// mutation runs in one store transaction.
type Service struct {
	store  *kvstore.Store
	now    func() time.Time
	newID  func() string
	events Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides note identity generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithPublisher sets the receiver of note change events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// New creates a service over an open store.
func New(store *kvstore.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) repo(q kvstore.Querier) *notes.Repo {
	return notes.NewRepo(q, notes.WithClock(s.now), notes.WithIDGenerator(s.newID))
}

func (s *Service) publish(kind, id string) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, id)
	}
}

// Create stores a new note. Its tag set is the normalized explicit tags
// plus the #tags found in the content; new tags are registered and usage
// counters are bumped in the same transaction.
func (s *Service) Create(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	in, err := cleanInput(in)
	if err != nil {
		return nil, err
	}
	var created *models.Note
	err = s.store.Update(ctx, func(tx *kvstore.Tx) error {
		n, err := s.repo(tx).Create(ctx, in)
		if err != nil {
			return err
		}
		created = n
		return syncTagUsage(ctx, tags.NewRegistry(tx), nil, n.Tags)
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: create: %w", err)
	}
	s.publish(EventCreated, created.ID)
	return created, nil
}

// Update replaces the editable fields of note id. When ifMatch is not
// empty it must equal the stored note's revision, otherwise
// apperr.ErrConflict is returned.
func (s *Service) Update(ctx context.Context, id string, in models.NoteInput, ifMatch string) (*models.Note, error) {
	in, err := cleanInput(in)
	if err != nil {
		return nil, err
	}
	var updated *models.Note
	err = s.store.Update(ctx, func(tx *kvstore.Tx) error {
		repo := s.repo(tx)
		existing, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.ErrNotFound
		}
		if ifMatch != "" && ifMatch != existing.Revision() {
			return apperr.ErrConflict
		}
		next := *existing
		next.Title = in.Title
		next.Content = in.Content
		next.Tags = in.Tags
		n, err := repo.Update(ctx, &next)
		if err != nil {
			return err
		}
		updated = n
		return syncTagUsage(ctx, tags.NewRegistry(tx), existing.Tags, n.Tags)
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: update %s: %w", id, err)
	}
	s.publish(EventUpdated, updated.ID)
	return updated, nil
}

// Delete removes a note and releases its tags. Deleting an unknown note
// is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	existed := false
	err := s.store.Update(ctx, func(tx *kvstore.Tx) error {
		repo := s.repo(tx)
		existing, err := repo.Get(ctx, id)
		if err != nil || existing == nil {
			return err
		}
		existed = true
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return syncTagUsage(ctx, tags.NewRegistry(tx), existing.Tags, nil)
	})
	if err != nil {
		return fmt.Errorf("noteservice: delete %s: %w", id, err)
	}
	if existed {
		s.publish(EventDeleted, id)
	}
	return nil
}

// Get returns the note with its live backlinks, or apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: get %s: %w", id, err)
	}
	for i := range all {
		if all[i].ID == id {
			n := all[i]
			n.Backlinks = linkgraph.BacklinkIDs(id, all)
			return &n, nil
		}
	}
	return nil, fmt.Errorf("noteservice: get %s: %w", id, apperr.ErrNotFound)
}

// View returns the note, its rendered markup and its backlinks.
func (s *Service) View(ctx context.Context, id string) (*NoteDetail, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: view %s: %w", id, err)
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		n := all[i]
		bl := linkgraph.Backlinks(id, all)
		n.Backlinks = refIDs(bl)
		return &NoteDetail{
			Note:      n,
			HTML:      content.Render(n.Content),
			Revision:  n.Revision(),
			Backlinks: refs(bl),
		}, nil
	}
	return nil, fmt.Errorf("noteservice: view %s: %w", id, apperr.ErrNotFound)
}

// Backlinks returns the notes referencing note id.
func (s *Service) Backlinks(ctx context.Context, id string) ([]NoteRef, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: backlinks: %w", err)
	}
	if !containsID(all, id) {
		return nil, fmt.Errorf("noteservice: backlinks %s: %w", id, apperr.ErrNotFound)
	}
	return refs(linkgraph.Backlinks(id, all)), nil
}

// Resolve looks up a wikilink title.
func (s *Service) Resolve(ctx context.Context, title string) (linkgraph.Resolution, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return linkgraph.Resolution{}, fmt.Errorf("noteservice: resolve: %w", err)
	}
	return linkgraph.Resolve(title, all), nil
}

// Graph returns every note as a node and every resolved wikilink as an
// edge.
func (s *Service) Graph(ctx context.Context) ([]linkgraph.GraphNode, []linkgraph.GraphLink, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("noteservice: graph: %w", err)
	}
	nodes, links := linkgraph.Graph(all)
	return nodes, links, nil
}

// cleanInput trims the input, merges explicit and inline tags and
// validates the result.
func cleanInput(in models.NoteInput) (models.NoteInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Tags = noteTags(in.Tags, in.Content)

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.Required.When(in.Content == "").Error("a note needs a title or content"),
			validation.RuneLength(0, maxTitleLen),
		),
		validation.Field(&in.Tags, validation.Each(validation.RuneLength(1, maxTagLen))),
	)
	if err != nil {
		return in, apperr.WrapValidation("invalid note", err)
	}
	return in, nil
}

// noteTags returns the sorted union of the normalized explicit tags and
// the tags found in text.
func noteTags(explicit []string, text string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		t = tags.Normalize(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range explicit {
		add(t)
	}
	for _, t := range content.ExtractTags(text) {
		add(t)
	}
	sort.Strings(out)
	return out
}

// syncTagUsage registers tags new to the note and moves usage counters
// from before to after.
func syncTagUsage(ctx context.Context, reg *tags.Registry, before, after []string) error {
	prev := toSet(before)
	next := toSet(after)
	for t := range prev {
		if _, keep := next[t]; keep {
			continue
		}
		if err := reg.DecrementUsage(ctx, t); err != nil {
			return err
		}
	}
	for _, t := range after {
		if _, had := prev[t]; had {
			continue
		}
		if _, err := reg.AddOrGet(ctx, t, ""); err != nil {
			if errors.Is(err, apperr.ErrValidation) {
				continue
			}
			return err
		}
		if err := reg.IncrementUsage(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func toSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		if t := tags.Normalize(s); t != "" {
			m[t] = struct{}{}
		}
	}
	return m
}

func containsID(all []models.Note, id string) bool {
	for _, n := range all {
		if n.ID == id {
			return true
		}
	}
	return false
}

func refs(ns []models.Note) []NoteRef {
	out := make([]NoteRef, 0, len(ns))
	for _, n := range ns {
		out = append(out, NoteRef{ID: n.ID, Title: n.Title})
	}
	return out
}

func refIDs(ns []models.Note) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.ID)
	}
	return out
}

// Ready reports whether the underlying store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
