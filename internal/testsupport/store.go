package testsupport

import (
	"context"
	"testing"

	"curator/internal/config"
	"curator/internal/jobs"
	"curator/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenJobs opens a jobs.Store for tests and registers cleanup.
func MustOpenJobs(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// RegisterSample inserts a sample for tests using the provided store.
func RegisterSample(t testing.TB, store *ledger.Store, id, mediaRef string) *ledger.Sample {
	t.Helper()

	sample, _, err := store.Register(context.Background(), "test", id, mediaRef, nil)
	if err != nil {
		t.Fatalf("store.Register: %v", err)
	}
	return sample
}
