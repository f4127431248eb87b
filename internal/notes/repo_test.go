package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/zettenote/internal/apperr"
	"github.com/starford/zettenote/internal/models"
	"github.com/starford/zettenote/internal/testutil"
)

// fakeClock returns successive instants step apart.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func testRepo(t *testing.T, clock *fakeClock) *Repo {
	t.Helper()
	store := testutil.TestStore(t)
	if clock == nil {
		return NewRepo(store)
	}
	return NewRepo(store, WithClock(clock.Now))
}

func TestCreateThenGet(t *testing.T) {
	r := testRepo(t, nil)
	ctx := context.Background()

	cases := []models.NoteInput{
		{Title: "Hello", Content: "World", Tags: []string{"a", "b"}},
		{Title: "", Content: "untitled body", Tags: nil},
		{Title: "Only title"},
	}
	for _, in := range cases {
		created, err := r.Create(ctx, in)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if created.ID == "" {
			t.Fatal("empty id")
		}
		got, err := r.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil {
			t.Fatalf("Get(%s) returned nil", created.ID)
		}
		if got.Title != in.Title || got.Content != in.Content {
			t.Errorf("got %q/%q, want %q/%q", got.Title, got.Content, in.Title, in.Content)
		}
		wantTags := in.Tags
		if wantTags == nil {
			wantTags = []string{}
		}
		if diff := cmp.Diff(wantTags, got.Tags); diff != "" {
			t.Errorf("tags mismatch (-want +got):\n%s", diff)
		}
		if !got.CreatedAt.Equal(got.UpdatedAt) {
			t.Errorf("createdAt %v != updatedAt %v", got.CreatedAt, got.UpdatedAt)
		}
		if len(got.Backlinks) != 0 {
			t.Errorf("backlinks = %v, want empty", got.Backlinks)
		}
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	r := testRepo(t, nil)
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		n, err := r.Create(ctx, models.NoteInput{Title: "dup"})
		if err != nil {
			t.Fatal(err)
		}
		if seen[n.ID] {
			t.Fatalf("duplicate id %s", n.ID)
		}
		seen[n.ID] = true
	}
}

func TestUpdate_KeepsIdentityAndCreatedAt(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	r := testRepo(t, clock)
	ctx := context.Background()

	n, _ := r.Create(ctx, models.NoteInput{Title: "v1", Content: "body", Tags: []string{"x"}})
	created := n.CreatedAt

	edit := *n
	edit.Title = "v2"
	edit.Tags = nil
	edit.CreatedAt = time.Unix(0, 0)
	updated, err := r.Update(ctx, &edit)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != n.ID {
		t.Errorf("id changed: %s -> %s", n.ID, updated.ID)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("createdAt changed: %v -> %v", created, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(n.UpdatedAt) {
		t.Errorf("updatedAt did not advance: %v -> %v", n.UpdatedAt, updated.UpdatedAt)
	}

	got, _ := r.Get(ctx, n.ID)
	if got.Title != "v2" {
		t.Errorf("title = %q", got.Title)
	}
	// Full replacement: cleared tags stay cleared.
	if len(got.Tags) != 0 {
		t.Errorf("tags = %v, want cleared", got.Tags)
	}
}

func TestUpdate_FrozenClockStillAdvances(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := testRepo(t, clock)
	ctx := context.Background()

	n, _ := r.Create(ctx, models.NoteInput{Title: "same instant"})
	prev := n.UpdatedAt
	for i := 0; i < 3; i++ {
		u, err := r.Update(ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		if !u.UpdatedAt.After(prev) {
			t.Fatalf("update %d: updatedAt %v not after %v", i, u.UpdatedAt, prev)
		}
		prev = u.UpdatedAt
		n = u
	}
}

func TestUpdate_UnknownID(t *testing.T) {
	r := testRepo(t, nil)
	_, err := r.Update(context.Background(), &models.Note{ID: "missing"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGet_Absent(t *testing.T) {
	r := testRepo(t, nil)
	n, err := r.Get(context.Background(), "nope")
	if err != nil || n != nil {
		t.Errorf("Get = %v, %v; want nil, nil", n, err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	r := testRepo(t, nil)
	ctx := context.Background()
	n, _ := r.Create(ctx, models.NoteInput{Title: "bye"})
	if err := r.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete(ctx, n.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if got, _ := r.Get(ctx, n.ID); got != nil {
		t.Error("note still present")
	}
}

func TestListByUpdated_Ascending(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Minute}
	r := testRepo(t, clock)
	ctx := context.Background()

	a, _ := r.Create(ctx, models.NoteInput{Title: "a"})
	b, _ := r.Create(ctx, models.NoteInput{Title: "b"})
	c, _ := r.Create(ctx, models.NoteInput{Title: "c"})
	// Touch a so it becomes the most recent.
	_, _ = r.Update(ctx, a)

	all, err := r.ListByUpdated(ctx)
	if err != nil {
		t.Fatalf("ListByUpdated: %v", err)
	}
	var ids []string
	for _, n := range all {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{b.ID, c.ID, a.ID}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	everything, _ := r.ListAll(ctx)
	if len(everything) != 3 {
		t.Errorf("ListAll len = %d, want 3", len(everything))
	}
}

func TestListByTitle(t *testing.T) {
	r := testRepo(t, nil)
	ctx := context.Background()
	_, _ = r.Create(ctx, models.NoteInput{Title: "Same"})
	_, _ = r.Create(ctx, models.NoteInput{Title: "Same"})
	_, _ = r.Create(ctx, models.NoteInput{Title: "Other"})

	got, err := r.ListByTitle(ctx, "Same")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestInsertAndClear(t *testing.T) {
	r := testRepo(t, nil)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := &models.Note{ID: "fixed-id", Title: "restored", CreatedAt: at, UpdatedAt: at.Add(time.Hour)}
	if err := r.Insert(ctx, n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, _ := r.Get(ctx, "fixed-id")
	if got == nil || !got.CreatedAt.Equal(at) || !got.UpdatedAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("Insert did not keep timestamps: %+v", got)
	}

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, _ := r.ListAll(ctx)
	if len(all) != 0 {
		t.Errorf("len = %d after clear", len(all))
	}
}
