package testsupport

import (
	"context"
	"testing"

	"mediapost/internal/config"
	"mediapost/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMediaFile registers a media file for tests using the provided store.
func NewMediaFile(t testing.TB, store *queue.Store, sourcePath string) *queue.MediaFile {
	t.Helper()

	file, err := store.CreateMediaFile(context.Background(), sourcePath)
	if err != nil {
		t.Fatalf("store.CreateMediaFile: %v", err)
	}
	return file
}
