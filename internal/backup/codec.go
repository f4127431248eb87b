// Package backup encodes the note set as a portable JSON payload and
// reads such payloads back as import candidates.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/models"
)

// FormatVersion tags every payload written by Serialize.
const FormatVersion = "1.0"

// Payload is the current backup format.
type Payload struct {
	Version    string        `json:"version"`
	ExportDate string        `json:"exportDate"`
	NoteCount  int           `json:"noteCount"`
	Notes      []models.Note `json:"notes"`
}

// Serialize wraps notes in a payload exported at at.
func Serialize(notes []models.Note, at time.Time) Payload {
	if notes == nil {
		notes = []models.Note{}
	}
	return Payload{
		Version:    FormatVersion,
		ExportDate: at.UTC().Format(time.RFC3339Nano),
		NoteCount:  len(notes),
		Notes:      notes,
	}
}

// Encode renders the payload as indented JSON.
func (p Payload) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: encode: %w", err)
	}
	return data, nil
}

// FileName is the conventional download name for a backup taken at at.
func FileName(at time.Time) string {
	return "zettenote-backup-" + at.UTC().Format("2006-01-02") + ".json"
}

// SnapshotName is the archive file name for a backup taken at at. Unlike
// FileName it is unique per second.
func SnapshotName(at time.Time) string {
	return "zettenote-backup-" + at.UTC().Format("20060102T150405Z") + ".json"
}

// Candidate is a note-shaped record read from a payload. Any field may be
// missing; zero timestamps mean absent.
type Candidate struct {
	ID        string
	Title     string
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type envelope struct {
	Version    string            `json:"version"`
	ExportDate string            `json:"exportDate"`
	NoteCount  *int              `json:"noteCount"`
	Notes      []json.RawMessage `json:"notes"`
}

// Validate implements validation.Validatable.
func (e envelope) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Version, validation.In(FormatVersion).Error("unsupported backup version")),
		validation.Field(&e.ExportDate, validation.By(rfc3339)),
		validation.Field(&e.NoteCount, validation.Min(0)),
		validation.Field(&e.Notes, validation.NotNil.Error("a notes sequence is required")),
	)
}

type record struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Tags      []string        `json:"tags"`
	CreatedAt json.RawMessage `json:"createdAt"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
}

// Parse reads a payload in the current format or the legacy bare array
// of notes. Malformed input is reported as an apperr.ValidationError.
func Parse(raw []byte) ([]Candidate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperr.Validation("backup is empty")
	}

	var items []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, apperr.WrapValidation("invalid backup JSON", err)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, apperr.WrapValidation("invalid backup format", err)
		}
		if err := env.Validate(); err != nil {
			return nil, apperr.WrapValidation("invalid backup format", err)
		}
		items = env.Notes
	default:
		return nil, apperr.Validation("invalid backup format: expected an object or an array of notes")
	}

	if len(items) == 0 {
		return nil, apperr.Validation("no notes found in backup")
	}

	out := make([]Candidate, 0, len(items))
	for i, item := range items {
		c, err := parseRecord(item)
		if err != nil {
			return nil, apperr.WrapValidation(fmt.Sprintf("note %d", i), err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRecord(item json.RawMessage) (Candidate, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || item[0] != '{' {
		return Candidate{}, fmt.Errorf("not an object")
	}
	var r record
	if err := json.Unmarshal(item, &r); err != nil {
		return Candidate{}, err
	}
	created, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return Candidate{}, fmt.Errorf("createdAt: %w", err)
	}
	updated, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return Candidate{}, fmt.Errorf("updatedAt: %w", err)
	}
	return Candidate{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Tags:      r.Tags,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// parseTimestamp accepts epoch milliseconds (integer or float) or an
// RFC 3339 string. Absent, null, zero and empty values yield the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
		return models.Millis(t), nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, err
	}
	if f == 0 {
		return time.Time{}, nil
	}
	if math.IsNaN(f) || math.Abs(f) > 8.64e15 {
		return time.Time{}, fmt.Errorf("timestamp %v out of range", f)
	}
	return time.UnixMilli(int64(f)), nil
}

func rfc3339(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		return fmt.Errorf("must be an ISO-8601 timestamp")
	}
	return nil
}
