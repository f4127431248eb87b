package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettenote/internal/linkgraph"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/noteservice"
	"github.com/starford/zettenote/internal/storage"
)

// NoteRequest is the request body for creating or updating a note.
type NoteRequest struct {
	Title   string   `json:"title" example:"Hello"`
	Content string   `json:"content" example:"Links to [[Other]] #idea"`
	Tags    []string `json:"tags" example:"idea,draft"`
}

// Validate implements validation.Validatable.
func (r NoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required.When(r.Content == "").Error("title or content is required")),
		validation.Field(&r.Tags, validation.Length(0, 100)),
	)
}

func (r NoteRequest) input() models.NoteInput {
	return models.NoteInput{Title: r.Title, Content: r.Content, Tags: r.Tags}
}

// TagRequest is the request body for registering a tag.
type TagRequest struct {
	Name   string `json:"name" example:"idea" validate:"required"`
	Colour string `json:"colour" example:"#ffcc00"`
}

// Validate implements validation.Validatable.
func (r TagRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, 64)),
	)
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse is the list response (aliased from the domain layer).
type NoteListResponse = noteservice.ListResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []noteservice.SearchResult `json:"results" validate:"required"`
}

// RefsResponse wraps a list of note references.
type RefsResponse struct {
	Notes []noteservice.NoteRef `json:"notes" validate:"required"`
}

// ResolveResponse is the outcome of resolving a wikilink title.
type ResolveResponse struct {
	Found bool         `json:"found"`
	Title string       `json:"title" example:"My Note"`
	Note  *models.Note `json:"note"`
}

// GraphResponse wraps the note graph.
type GraphResponse struct {
	Nodes []linkgraph.GraphNode `json:"nodes" validate:"required"`
	Links []linkgraph.GraphLink `json:"links" validate:"required"`
}

// TagsResponse wraps the tag registry.
type TagsResponse struct {
	Tags []models.Tag `json:"tags" validate:"required"`
}

// ImportResponse reports the outcome of a backup import.
type ImportResponse struct {
	Imported int    `json:"imported" example:"12"`
	Mode     string `json:"mode" example:"merge"`
}

// BackupsResponse lists archived backups.
type BackupsResponse struct {
	Backups []storage.Entry `json:"backups" validate:"required"`
}
