package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/history"
)

// MustOpenHistory opens the history ledger for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
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

// AddFinishedJob inserts a completed-job record with sensible defaults.
func AddFinishedJob(t testing.TB, store *history.Store, name, outcome string) {
	t.Helper()

	err := store.Add(context.Background(), history.Record{
		Name:        name,
		Profile:     "default",
		Outcome:     outcome,
		Duration:    5400,
		InputBytes:  8 << 30,
		OutputBytes: 2 << 30,
		Passes:      2,
		WallTime:    45 * time.Minute,
		Host:        "media01",
	})
	if err != nil {
		t.Fatalf("history.Add: %v", err)
	}
}
