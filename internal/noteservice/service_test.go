package noteservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/backup"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/tags"
	"github.com/starford/zettenote/internal/testutil"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishNoteEvent(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+id)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	base := []Option{
		WithClock(clock.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	}
	return New(testutil.TestStore(t), append(base, opts...)...)
}

func mustCreate(t *testing.T, s *Service, title, content string, tagNames ...string) *models.Note {
	t.Helper()
	n, err := s.Create(context.Background(), models.NoteInput{Title: title, Content: content, Tags: tagNames})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return n
}

func usage(t *testing.T, s *Service) map[string]int {
	t.Helper()
	all, err := s.Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	out := make(map[string]int, len(all))
	for _, tg := range all {
		out[tg.ID] = tg.Usage
	}
	return out
}

func TestCreate_MergesTagsAndCountsUsage(t *testing.T) {
	s := newTestService(t)
	n := mustCreate(t, s, "  A  ", "hello #Go", "Work", "#go", " ")

	if n.Title != "A" {
		t.Errorf("title = %q, want trimmed", n.Title)
	}
	if diff := cmp.Diff([]string{"go", "work"}, n.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if !n.CreatedAt.Equal(n.UpdatedAt) {
		t.Errorf("createdAt %v != updatedAt %v", n.CreatedAt, n.UpdatedAt)
	}
	if diff := cmp.Diff(map[string]int{"go": 1, "work": 1}, usage(t, s)); diff != "" {
		t.Errorf("usage (-want +got):\n%s", diff)
	}
}

func TestCreate_Validation(t *testing.T) {
	s := newTestService(t)
	_, err := s.Create(context.Background(), models.NoteInput{Title: "  ", Content: "\n"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	// Content alone is enough.
	mustCreate(t, s, "", "just text")
}

func TestUpdate_MovesUsage(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A", "#go", "work")
	mustCreate(t, s, "B", "#go")

	got, err := s.Update(ctx, a.ID, models.NoteInput{Title: "A2", Content: "now #rust"}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != a.ID || !got.CreatedAt.Equal(a.CreatedAt) || !got.UpdatedAt.After(a.UpdatedAt) {
		t.Errorf("update changed identity or timestamps: %+v", got)
	}
	want := map[string]int{"go": 1, "work": 0, "rust": 1}
	if diff := cmp.Diff(want, usage(t, s)); diff != "" {
		t.Errorf("usage (-want +got):\n%s", diff)
	}
}

func TestUpdate_NotFoundAndConflict(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Update(ctx, "missing", models.NoteInput{Title: "x"}, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}

	n := mustCreate(t, s, "A", "")
	if _, err := s.Update(ctx, n.ID, models.NoteInput{Title: "B"}, "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale revision err = %v", err)
	}
	if _, err := s.Update(ctx, n.ID, models.NoteInput{Title: "B"}, n.Revision()); err != nil {
		t.Errorf("matching revision err = %v", err)
	}
}

func TestDelete_ReleasesTagsAndIsIdempotent(t *testing.T) {
	rec := &recorder{}
	s := newTestService(t, WithPublisher(rec))
	ctx := context.Background()
	n := mustCreate(t, s, "A", "#go")

	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if u := usage(t, s)["go"]; u != 0 {
		t.Errorf("go usage = %d, want 0", u)
	}
	if _, err := s.Get(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	want := []string{"created:" + n.ID, "deleted:" + n.ID}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestView_RendersAndLinksBack(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	target := mustCreate(t, s, "Target", "**hi**")
	src := mustCreate(t, s, "Source", "see [[Target]]")

	v, err := s.View(ctx, target.ID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.HTML != "<strong>hi</strong>" {
		t.Errorf("html = %q", v.HTML)
	}
	if diff := cmp.Diff([]NoteRef{{ID: src.ID, Title: "Source"}}, v.Backlinks); diff != "" {
		t.Errorf("backlinks (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{src.ID}, v.Note.Backlinks); diff != "" {
		t.Errorf("note backlinks (-want +got):\n%s", diff)
	}
	if v.Revision != v.Note.Revision() {
		t.Errorf("revision = %q", v.Revision)
	}

	if _, err := s.View(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("View(nope) err = %v", err)
	}
	if _, err := s.Backlinks(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Backlinks(nope) err = %v", err)
	}

	res, err := s.Resolve(ctx, "target")
	if err != nil || !res.Found() || res.Note.ID != target.ID {
		t.Errorf("Resolve = %+v, %v", res, err)
	}
}

func TestList(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	b := mustCreate(t, s, "banana", "links [[Apple]]", "fruit")
	a := mustCreate(t, s, "Apple", "first line\nsecond line", "fruit")
	c := mustCreate(t, s, "cherry", "#red berry")

	ids := func(r *ListResult) []string {
		out := []string{}
		for _, n := range r.Notes {
			out = append(out, n.ID)
		}
		return out
	}

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"newest first", ListOptions{}, []string{c.ID, a.ID, b.ID}},
		{"title asc", ListOptions{Sort: SortTitleAsc}, []string{a.ID, b.ID, c.ID}},
		{"title desc", ListOptions{Sort: SortTitleDesc}, []string{c.ID, b.ID, a.ID}},
		{"query content", ListOptions{Query: "BERRY"}, []string{c.ID}},
		{"query tag", ListOptions{Query: "frui"}, []string{a.ID, b.ID}},
		{"tag filter", ListOptions{Tag: "#Fruit", Sort: SortTitleAsc}, []string{a.ID, b.ID}},
		{"orphans", ListOptions{OrphansOnly: true}, []string{c.ID, b.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(r)); diff != "" {
				t.Errorf("ids (-want +got):\n%s", diff)
			}
			if r.Total != 3 {
				t.Errorf("total = %d", r.Total)
			}
		})
	}

	r, _ := s.List(ctx, ListOptions{Query: "apple", Sort: SortTitleAsc})
	if r.Notes[0].Preview != "first line" {
		t.Errorf("preview = %q", r.Notes[0].Preview)
	}
	if diff := cmp.Diff([]string{"fruit", "red"}, r.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}

	if _, err := s.List(ctx, ListOptions{Sort: "random"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad sort err = %v", err)
	}
}

func TestSearch(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	long := strings.Repeat("word ", 30)
	mustCreate(t, s, "Go notes", "line one\n\nline two")
	mustCreate(t, s, "Long", "go "+long)
	mustCreate(t, s, "Other", "nothing")

	hits, err := s.Search(ctx, "GO", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[1].Snippet != "line one line two" {
		t.Errorf("snippet = %q", hits[1].Snippet)
	}
	if r := []rune(hits[0].Snippet); len(r) != 81 || r[80] != '…' {
		t.Errorf("long snippet = %q", hits[0].Snippet)
	}

	if hits, _ := s.Search(ctx, "go", 1); len(hits) != 1 {
		t.Errorf("limit ignored: %d hits", len(hits))
	}
	if hits, _ := s.Search(ctx, "  ", 0); len(hits) != 0 {
		t.Errorf("empty query hits = %d", len(hits))
	}
}

func TestGraphAndOrphans(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A", "[[B]]")
	b := mustCreate(t, s, "B", "")

	nodes, links, err := s.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 || len(links) != 1 || links[0].Source != a.ID || links[0].Target != b.ID {
		t.Errorf("graph = %v %v", nodes, links)
	}
	orphans, err := s.Orphans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]NoteRef{{ID: a.ID, Title: "A"}}, orphans); diff != "" {
		t.Errorf("orphans (-want +got):\n%s", diff)
	}
}

func TestTagsAdminAndRepair(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	mustCreate(t, s, "A", "#go")
	mustCreate(t, s, "B", "#go #db")

	tg, err := s.AddTag(ctx, "Ideas", "#ff0000")
	if err != nil || tg.ID != "ideas" || tg.Colour != "#ff0000" {
		t.Fatalf("AddTag = %+v, %v", tg, err)
	}
	if tg, _ := s.AddTag(ctx, "ideas", "#00ff00"); tg.Colour != "#00ff00" {
		t.Errorf("recolour = %+v", tg)
	}
	if _, err := s.AddTag(ctx, "bad", "red"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad colour err = %v", err)
	}
	if _, err := s.AddTag(ctx, "#", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty name err = %v", err)
	}

	// Drift the counters and drop a tag definition, then repair.
	reg := tags.NewRegistry(s.store)
	_ = reg.SetUsage(ctx, "go", 7)
	_ = reg.SetUsage(ctx, "ideas", 3)
	if err := s.RemoveTag(ctx, "db"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RepairTagUsage(ctx); err != nil {
		t.Fatalf("RepairTagUsage: %v", err)
	}
	want := map[string]int{"go": 2, "db": 1, "ideas": 0}
	if diff := cmp.Diff(want, usage(t, s)); diff != "" {
		t.Errorf("usage (-want +got):\n%s", diff)
	}
}

func TestSettings(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Setting(ctx, "theme"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unset err = %v", err)
	}
	if err := s.SetSetting(ctx, "theme", json.RawMessage(`"dark"`)); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	raw, err := s.Setting(ctx, "theme")
	if err != nil || string(raw) != `"dark"` {
		t.Errorf("Setting = %s, %v", raw, err)
	}
	if err := s.SetSetting(ctx, "theme", json.RawMessage(`"neon"`)); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad theme err = %v", err)
	}
	if err := s.SetSetting(ctx, "x", json.RawMessage(`{oops`)); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad json err = %v", err)
	}
}

func TestExportImport(t *testing.T) {
	rec := &recorder{}
	s := newTestService(t, WithPublisher(rec))
	ctx := context.Background()
	a := mustCreate(t, s, "A", "#go [[B]]")
	b := mustCreate(t, s, "B", "")

	p, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if p.NoteCount != 2 || p.Version != backup.FormatVersion {
		t.Fatalf("payload = %+v", p)
	}
	for _, n := range p.Notes {
		if n.ID == b.ID && (len(n.Backlinks) != 1 || n.Backlinks[0] != a.ID) {
			t.Errorf("export backlinks of B = %v", n.Backlinks)
		}
	}
	raw, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}

	// Merge duplicates with fresh identities.
	n, err := s.Import(ctx, raw, backup.ModeMerge)
	if err != nil || n != 2 {
		t.Fatalf("merge = %d, %v", n, err)
	}
	if r, _ := s.List(ctx, ListOptions{}); r.Total != 4 {
		t.Errorf("after merge total = %d", r.Total)
	}
	if u := usage(t, s)["go"]; u != 2 {
		t.Errorf("go usage after merge = %d", u)
	}

	// Replace restores exactly the exported notes.
	mustCreate(t, s, "C", "#extra")
	n, err = s.Import(ctx, raw, backup.ModeReplace)
	if err != nil || n != 2 {
		t.Fatalf("replace = %d, %v", n, err)
	}
	got, err := s.Get(ctx, a.ID)
	if err != nil || got.Title != "A" || !got.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("restored A = %+v, %v", got, err)
	}
	if r, _ := s.List(ctx, ListOptions{}); r.Total != 2 {
		t.Errorf("after replace total = %d", r.Total)
	}
	want := map[string]int{"go": 1, "extra": 0}
	if diff := cmp.Diff(want, usage(t, s)); diff != "" {
		t.Errorf("usage after replace (-want +got):\n%s", diff)
	}

	// An empty backup is rejected and changes nothing.
	if _, err := s.Import(ctx, []byte(`{"version":"1.0","notes":[]}`), backup.ModeReplace); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty import err = %v", err)
	}
	if r, _ := s.List(ctx, ListOptions{}); r.Total != 2 {
		t.Errorf("empty import changed notes: total = %d", r.Total)
	}
	if rec.events[len(rec.events)-1] != EventImported+":" {
		t.Errorf("last event = %q", rec.events[len(rec.events)-1])
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestService(t)
	_, archive := testutil.TestArchive(t)
	mustCreate(t, s, "A", "")

	entry, err := s.Snapshot(context.Background(), archive)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !strings.HasPrefix(entry.Name, "zettenote-backup-") || entry.Size == 0 {
		t.Errorf("entry = %+v", entry)
	}
	raw, err := archive.Read(entry.Name)
	if err != nil {
		t.Fatal(err)
	}
	cands, err := backup.Parse(raw)
	if err != nil || len(cands) != 1 || cands[0].Title != "A" {
		t.Errorf("snapshot parse = %+v, %v", cands, err)
	}
}
