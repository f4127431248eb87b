package noteservice

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/linkgraph"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/tags"
)

// Sort orders accepted by List.
const (
	SortUpdated   = "updated"
	SortTitleAsc  = "title-asc"
	SortTitleDesc = "title-desc"
)

const (
	previewLen = 100
	snippetLen = 80
)

// ListOptions filters and orders List results. Zero values disable the
// corresponding filter; an empty Sort means SortUpdated.
type ListOptions struct {
	Query       string
	Tag         string
	Sort        string
	OrphansOnly bool
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Preview   string   `json:"preview"`
	Tags      []string `json:"tags"`
	// UpdatedAt is in milliseconds since the Unix epoch, like notes.
	UpdatedAt int64 `json:"updatedAt"`
}

// ListResult is one page of the note list.
type ListResult struct {
	Notes []NoteListItem `json:"notes"`
	// Total counts all notes before filtering.
	Total int `json:"total"`
	// Tags lists every tag used by any note, sorted.
	Tags []string `json:"tags"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Tags    []string `json:"tags"`
}

// ValidSort reports whether s is an accepted sort order.
func ValidSort(s string) bool {
	switch s {
	case "", SortUpdated, SortTitleAsc, SortTitleDesc:
		return true
	}
	return false
}

// List returns notes matching opts. The query matches title, content or
// any tag, ignoring case. The default order is newest update first.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if !ValidSort(opts.Sort) {
		return nil, apperr.Validation(fmt.Sprintf("unknown sort %q", opts.Sort))
	}
	all, err := s.repo(s.store).ListByUpdated(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: list: %w", err)
	}
	slices.Reverse(all)

	filtered := all
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		filtered = filter(filtered, func(n models.Note) bool { return matches(n, q) })
	}
	if tag := tags.Normalize(opts.Tag); tag != "" {
		filtered = filter(filtered, func(n models.Note) bool { return slices.Contains(n.Tags, tag) })
	}
	if opts.OrphansOnly {
		orphan := make(map[string]struct{})
		for _, n := range linkgraph.Orphans(all) {
			orphan[n.ID] = struct{}{}
		}
		filtered = filter(filtered, func(n models.Note) bool {
			_, ok := orphan[n.ID]
			return ok
		})
	}

	switch opts.Sort {
	case SortTitleAsc:
		sort.SliceStable(filtered, func(i, j int) bool { return titleLess(filtered[i], filtered[j]) })
	case SortTitleDesc:
		sort.SliceStable(filtered, func(i, j int) bool { return titleLess(filtered[j], filtered[i]) })
	}

	items := make([]NoteListItem, 0, len(filtered))
	for _, n := range filtered {
		items = append(items, NoteListItem{
			ID:        n.ID,
			Title:     n.Title,
			Preview:   preview(n.Content),
			Tags:      nonNilSlice(n.Tags),
			UpdatedAt: n.UpdatedAt.UnixMilli(),
		})
	}
	return &ListResult{Notes: items, Total: len(all), Tags: usedTags(all)}, nil
}

// Search returns up to limit notes matching query in title, content or
// tags. An empty query matches nothing; limit <= 0 means no limit.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	out := []SearchResult{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out, nil
	}
	all, err := s.repo(s.store).ListByUpdated(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: search: %w", err)
	}
	slices.Reverse(all)
	for _, n := range all {
		if !matches(n, q) {
			continue
		}
		out = append(out, SearchResult{
			ID:      n.ID,
			Title:   n.Title,
			Snippet: Snippet(n.Content),
			Tags:    nonNilSlice(n.Tags),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Orphans returns the notes no other note links to.
func (s *Service) Orphans(ctx context.Context) ([]NoteRef, error) {
	all, err := s.repo(s.store).ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: orphans: %w", err)
	}
	return refs(linkgraph.Orphans(all)), nil
}

// Snippet flattens text onto one line and cuts it to 80 characters,
// marking the cut with an ellipsis.
func Snippet(text string) string {
	clean := strings.Join(strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }), " ")
	r := []rune(clean)
	if len(r) > snippetLen {
		return string(r[:snippetLen]) + "…"
	}
	return clean
}

func preview(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	r := []rune(first)
	if len(r) > previewLen {
		return string(r[:previewLen])
	}
	return first
}

func matches(n models.Note, q string) bool {
	if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q) {
		return true
	}
	for _, t := range n.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func titleLess(a, b models.Note) bool {
	la, lb := strings.ToLower(a.Title), strings.ToLower(b.Title)
	if la != lb {
		return la < lb
	}
	return a.Title < b.Title
}

func filter(ns []models.Note, keep func(models.Note) bool) []models.Note {
	out := make([]models.Note, 0, len(ns))
	for _, n := range ns {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func usedTags(all []models.Note) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, n := range all {
		for _, t := range n.Tags {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
