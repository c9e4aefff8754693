// Package testutil provides shared test helpers for setting up databases, splitters and inboxes.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/notechain/internal/split"
	"github.com/starford/notechain/internal/storage"
	"github.com/starford/notechain/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T, opts ...store.Option) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notechain-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSplitter creates a splitter for the given ceiling.
func TestSplitter(t *testing.T, maxLen int) *split.Splitter {
	t.Helper()
	s, err := split.New(maxLen, Logger())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// TestInbox creates a temporary inbox directory with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
