// Package models defines the domain types for zettenote.
package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Note is a single note record as stored in the notes collection.
type Note struct {
	ID        string
	Title     string
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Backlinks holds identities of notes referencing this one. It is
	// derived on read and never trusted from storage.
	Backlinks []string
}

// NoteInput carries the user-editable fields of a note.
type NoteInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// noteJSON is the persisted and exported shape. Timestamps are
// milliseconds since the Unix epoch so that the updatedAt index sorts
// numerically.
type noteJSON struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	Backlinks []string `json:"backlinks"`
}

// MarshalJSON implements json.Marshaler.
func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteJSON{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      nonNil(n.Tags),
		CreatedAt: n.CreatedAt.UnixMilli(),
		UpdatedAt: n.UpdatedAt.UnixMilli(),
		Backlinks: nonNil(n.Backlinks),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Note) UnmarshalJSON(data []byte) error {
	var raw noteJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Note{
		ID:        raw.ID,
		Title:     raw.Title,
		Content:   raw.Content,
		Tags:      nonNil(raw.Tags),
		CreatedAt: time.UnixMilli(raw.CreatedAt),
		UpdatedAt: time.UnixMilli(raw.UpdatedAt),
		Backlinks: nonNil(raw.Backlinks),
	}
	return nil
}

// Millis truncates t to the millisecond precision notes are stored with.
func Millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Revision identifies the stored version of a note for conditional
// updates. It changes on every update.
func (n Note) Revision() string {
	return strconv.FormatInt(n.UpdatedAt.UnixMilli(), 10)
}
