// Package settings stores opaque key/value application settings.
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/schema"
)

// Known keys.
const (
	KeyTheme = "theme"
)

// Theme values.
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// Store reads and writes the settings collection.
type Store struct {
	settings kvstore.Collection[models.Setting]
}

// New returns a settings store over q.
func New(q kvstore.Querier) *Store {
	return &Store{settings: kvstore.NewCollection[models.Setting](q, schema.Settings)}
}

// Get decodes the value under key into dst. It reports false when the key
// is unset.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	st, err := s.settings.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	if st == nil {
		return false, nil
	}
	if err := json.Unmarshal(st.Value, dst); err != nil {
		return false, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return true, nil
}

// Raw returns the stored value under key, or nil when unset.
func (s *Store) Raw(ctx context.Context, key string) (json.RawMessage, error) {
	st, err := s.settings.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("settings: get %s: %w", key, err)
	}
	if st == nil {
		return nil, nil
	}
	return st.Value, nil
}

// Set stores value under key. Known keys are validated first.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return apperr.Validation("setting key is required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	if err := validate(key, raw); err != nil {
		return err
	}
	if err := s.settings.Put(ctx, &models.Setting{Key: key, Value: raw}); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.settings.Delete(ctx, key); err != nil {
		return fmt.Errorf("settings: delete %s: %w", key, err)
	}
	return nil
}

func validate(key string, raw json.RawMessage) error {
	switch key {
	case KeyTheme:
		var theme string
		if err := json.Unmarshal(raw, &theme); err != nil {
			return apperr.WrapValidation("theme must be a string", err)
		}
		if err := validation.Validate(theme,
			validation.Required,
			validation.In(ThemeSystem, ThemeLight, ThemeDark),
		); err != nil {
			return apperr.WrapValidation("invalid theme", err)
		}
	}
	return nil
}
