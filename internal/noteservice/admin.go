package noteservice

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/backup"
	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/linkgraph"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/notes"
	"github.com/starford/zettenote/internal/settings"
	"github.com/starford/zettenote/internal/storage"
	"github.com/starford/zettenote/internal/tags"
)

var colourRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Tags returns every registered tag ordered by name.
func (s *Service) Tags(ctx context.Context) ([]models.Tag, error) {
	all, err := tags.NewRegistry(s.store).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: tags: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// AddTag registers a tag, or recolours it when it already exists. An
// empty colour keeps the current one.
func (s *Service) AddTag(ctx context.Context, name, colour string) (*models.Tag, error) {
	if err := validation.Validate(colour, validation.Match(colourRe).Error("colour must look like #rrggbb")); err != nil {
		return nil, apperr.WrapValidation("invalid tag", err)
	}
	var out *models.Tag
	err := s.store.Update(ctx, func(tx *kvstore.Tx) error {
		reg := tags.NewRegistry(tx)
		t, err := reg.AddOrGet(ctx, name, colour)
		if err != nil {
			return err
		}
		if colour != "" && t.Colour != colour {
			if t, err = reg.SetColour(ctx, name, colour); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: add tag: %w", err)
	}
	return out, nil
}

// RemoveTag deletes a tag definition. Notes keep the name in their tag
// sets, and the tag is registered again on their next save.
func (s *Service) RemoveTag(ctx context.Context, name string) error {
	if err := tags.NewRegistry(s.store).Remove(ctx, name); err != nil {
		return fmt.Errorf("noteservice: remove tag: %w", err)
	}
	return nil
}

// RepairTagUsage recounts every usage counter from the notes' tag sets,
// registering tags that notes use but the registry lacks. Tags no note
// uses are kept with usage 0.
func (s *Service) RepairTagUsage(ctx context.Context) ([]models.Tag, error) {
	err := s.store.Update(ctx, func(tx *kvstore.Tx) error {
		all, err := s.repo(tx).ListAll(ctx)
		if err != nil {
			return err
		}
		counts := make(map[string]int)
		for _, n := range all {
			for t := range toSet(n.Tags) {
				counts[t]++
			}
		}
		reg := tags.NewRegistry(tx)
		for t := range counts {
			if _, err := reg.AddOrGet(ctx, t, ""); err != nil {
				return err
			}
		}
		registered, err := reg.List(ctx)
		if err != nil {
			return err
		}
		for _, t := range registered {
			if t.Usage == counts[t.ID] {
				continue
			}
			if err := reg.SetUsage(ctx, t.ID, counts[t.ID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("noteservice: repair tag usage: %w", err)
	}
	return s.Tags(ctx)
}

// Setting returns the raw value stored under key, or apperr.ErrNotFound.
func (s *Service) Setting(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := settings.New(s.store).Raw(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("noteservice: setting: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("noteservice: setting %s: %w", key, apperr.ErrNotFound)
	}
	return raw, nil
}

// SetSetting stores a JSON value under key.
func (s *Service) SetSetting(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return apperr.Validation("setting value must be JSON")
	}
	if err := settings.New(s.store).Set(ctx, key, value); err != nil {
		return fmt.Errorf("noteservice: set setting: %w", err)
	}
	return nil
}

// Export returns a backup payload of every note with live backlinks.
func (s *Service) Export(ctx context.Context) (backup.Payload, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return backup.Payload{}, fmt.Errorf("noteservice: export: %w", err)
	}
	for i := range all {
		all[i].Backlinks = linkgraph.BacklinkIDs(all[i].ID, all)
	}
	return backup.Serialize(all, s.now()), nil
}

// Import reads a backup payload and writes its notes. ModeReplace first
// removes every note and zeroes every tag counter. Either all notes are
// imported or none are.
func (s *Service) Import(ctx context.Context, raw []byte, mode backup.Mode) (int, error) {
	cands, err := backup.Parse(raw)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.store.Update(ctx, func(tx *kvstore.Tx) error {
		repo := s.repo(tx)
		reg := tags.NewRegistry(tx)
		if mode == backup.ModeReplace {
			if err := repo.Clear(ctx); err != nil {
				return err
			}
			registered, err := reg.List(ctx)
			if err != nil {
				return err
			}
			for _, t := range registered {
				if err := reg.SetUsage(ctx, t.ID, 0); err != nil {
					return err
				}
			}
		}
		w := &importWriter{repo: repo, reg: reg}
		count, err = backup.Reconcile(ctx, w, cands, mode,
			backup.WithClock(s.now), backup.WithIDGenerator(s.newID))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("noteservice: import: %w", err)
	}
	s.publish(EventImported, "")
	return count, nil
}

// Snapshot exports every note into the archive and returns the new entry.
func (s *Service) Snapshot(ctx context.Context, archive storage.Archive) (*storage.Entry, error) {
	p, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	name := backup.SnapshotName(s.now())
	if err := archive.Write(name, data); err != nil {
		return nil, fmt.Errorf("noteservice: snapshot: %w", err)
	}
	entries, err := archive.List()
	if err != nil {
		return nil, fmt.Errorf("noteservice: snapshot: %w", err)
	}
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("noteservice: snapshot %s: %w", name, apperr.ErrNotFound)
}

// importWriter applies the usual tag handling to reconciled notes.
type importWriter struct {
	repo *notes.Repo
	reg  *tags.Registry
}

func (w *importWriter) Create(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	in.Tags = noteTags(in.Tags, in.Content)
	n, err := w.repo.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	return n, syncTagUsage(ctx, w.reg, nil, n.Tags)
}

func (w *importWriter) Insert(ctx context.Context, n *models.Note) error {
	n.Tags = noteTags(n.Tags, n.Content)
	if err := w.repo.Insert(ctx, n); err != nil {
		return err
	}
	return syncTagUsage(ctx, w.reg, nil, n.Tags)
}
