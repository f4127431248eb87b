// Package testutil provides shared test helpers for opening stores and archives.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/zettenote/internal/kvstore"
	"github.com/starford/zettenote/internal/schema"
	"github.com/starford/zettenote/internal/storage"
)

// TestStore opens a temporary database with the zettenote schema that is
// closed and removed when the test ends.
func TestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "zettenote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	store, err := schema.Open(context.Background(), dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestArchive creates a temporary backup archive directory.
func TestArchive(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
