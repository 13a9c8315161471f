package testsupport

import (
	"context"
	"testing"
	"time"

	"docflow/internal/config"
	"docflow/internal/history"
	"docflow/internal/notify"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenNotifyStore opens a notify.Store for tests and registers cleanup.
func MustOpenNotifyStore(t testing.TB, cfg *config.Config) *notify.Store {
	t.Helper()

	store, err := notify.OpenStore(cfg)
	if err != nil {
		t.Fatalf("notify.OpenStore: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// OpenEntry appends an open stage entry for tests.
func OpenEntry(t testing.TB, store *history.Store, fileID string, stage history.Stage, workerID, workerName string, enteredAt time.Time) *history.Entry {
	t.Helper()

	entry, err := store.Append(context.Background(), history.Entry{
		FileID:     fileID,
		Stage:      stage,
		WorkerID:   workerID,
		WorkerName: workerName,
		EnteredAt:  enteredAt,
	})
	if err != nil {
		t.Fatalf("store.Append: %v", err)
	}
	return entry
}
