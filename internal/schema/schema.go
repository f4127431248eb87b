// Package schema declares the zettenote collections and opens the store.
package schema

import (
	"context"

	"github.com/starford/zettenote/internal/kvstore"
)

// Version is the current schema version.
const Version = 1

// Collection and index names.
const (
	Notes    = "notes"
	Tags     = "tags"
	Settings = "settings"

	NotesByTitle   = "by_title"
	NotesByUpdated = "by_updated"
)

// Open opens the database at path and applies the zettenote schema.
func Open(ctx context.Context, path string) (*kvstore.Store, error) {
	return kvstore.Open(ctx, path, Version, Upgrade)
}

// Upgrade creates any missing collection or index. It is safe to run
// against a partially initialised database.
func Upgrade(s *kvstore.Schema, _, _ int) error {
	collections := []struct{ name, keyPath string }{
		{Notes, "id"},
		{Tags, "id"},
		{Settings, "key"},
	}
	for _, c := range collections {
		ok, err := s.HasCollection(c.name)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.CreateCollection(c.name, c.keyPath); err != nil {
				return err
			}
		}
	}

	indexes := []struct{ name, field string }{
		{NotesByTitle, "title"},
		{NotesByUpdated, "updatedAt"},
	}
	for _, ix := range indexes {
		ok, err := s.HasIndex(Notes, ix.name)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.CreateIndex(Notes, ix.name, ix.field); err != nil {
				return err
			}
		}
	}
	return nil
}
