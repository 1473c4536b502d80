package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"curator/internal/coordinator"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/testsupport"
)

func newCoordinator(t *testing.T) (*coordinator.Coordinator, *ledger.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	return coordinator.New(store, logging.NewNop()), store
}

func TestTagWritesFromStaleBaseAreMerged(t *testing.T) {
	coord, store := newCoordinator(t)
	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/a.jpg", "/media/imgs/a.jpg")

	// Two sessions edit from the same base version.
	if _, err := coord.Apply(ctx, "alice", sample.ID, sample.Version, ledger.Delta{AddTags: []string{"person"}}); err != nil {
		t.Fatalf("alice write: %v", err)
	}
	merged, err := coord.Apply(ctx, "bob", sample.ID, sample.Version, ledger.Delta{AddTags: []string{"vehicle"}})
	if err != nil {
		t.Fatalf("bob write should auto-merge: %v", err)
	}

	if !merged.HasTag("person") || !merged.HasTag("vehicle") {
		t.Fatalf("expected union of both adds, got %v", merged.Tags)
	}
	if merged.Version != 3 {
		t.Fatalf("expected version 3 after two accepted writes, got %d", merged.Version)
	}

	records, err := store.ConflictsFor(ctx, sample.ID)
	if err != nil {
		t.Fatalf("ConflictsFor: %v", err)
	}
	if len(records) != 1 || records[0].Resolution != ledger.ResolutionMerged {
		t.Fatalf("expected one merged record, got %#v", records)
	}
}

func TestTagMergeIsOrderIndependent(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, order []string) []string {
		coord, store := newCoordinator(t)
		sample := testsupport.RegisterSample(t, store, "imgs/o.jpg", "/media/imgs/o.jpg")
		seeded, err := store.Write(ctx, "setup", sample.ID, sample.Version, ledger.Delta{AddTags: []string{"blurry"}})
		if err != nil {
			t.Fatalf("seed tag: %v", err)
		}
		deltas := map[string]ledger.Delta{
			"add-person": {AddTags: []string{"person"}},
			"add-truck":  {AddTags: []string{"truck"}},
			"del-blurry": {RemoveTags: []string{"blurry"}},
		}
		for _, name := range order {
			if _, err := coord.Apply(ctx, name, sample.ID, seeded.Version, deltas[name]); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
		final, err := store.Get(ctx, sample.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		return final.Tags
	}

	// All writers start from the same base; final set must be the union of
	// adds minus the removes regardless of arrival order.
	want := []string{"person", "truck"}
	for _, order := range [][]string{
		{"add-person", "add-truck", "del-blurry"},
		{"del-blurry", "add-truck", "add-person"},
		{"add-truck", "del-blurry", "add-person"},
	} {
		got := run(t, order)
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("order %v: expected %v, got %v", order, want, got)
		}
	}
}

func TestFieldConflictIsRejectedAndRecorded(t *testing.T) {
	coord, store := newCoordinator(t)
	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/b.jpg", "/media/imgs/b.jpg")

	// Raise the sample to version 3 to match the documented scenario.
	for i := 0; i < 2; i++ {
		var err error
		sample, err = store.Write(ctx, "setup", sample.ID, sample.Version, ledger.Delta{AddTags: []string{"t"}})
		if err != nil {
			t.Fatalf("setup write: %v", err)
		}
		sample, err = store.Write(ctx, "setup", sample.ID, sample.Version, ledger.Delta{RemoveTags: []string{"t"}})
		if err != nil {
			t.Fatalf("setup write: %v", err)
		}
	}
	if sample.Version != 5 {
		t.Fatalf("setup expected version 5, got %d", sample.Version)
	}
	base := sample.Version

	winner, err := coord.Apply(ctx, "alice", sample.ID, base, ledger.Delta{SetFields: map[string]any{"color": "red"}})
	if err != nil {
		t.Fatalf("alice write: %v", err)
	}
	if winner.Version != base+1 {
		t.Fatalf("expected version bump, got %d", winner.Version)
	}

	_, err = coord.Apply(ctx, "bob", sample.ID, base, ledger.Delta{SetFields: map[string]any{"color": "blue"}})
	var conflict *ledger.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Current != base+1 || conflict.Attempted != base {
		t.Fatalf("unexpected conflict: %#v", conflict)
	}

	// Loser's value must not be visible.
	current, err := store.Get(ctx, sample.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Fields["color"] != "red" {
		t.Fatalf("expected winning value red, got %v", current.Fields["color"])
	}

	records, err := store.ConflictsFor(ctx, sample.ID)
	if err != nil {
		t.Fatalf("ConflictsFor: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one conflict record, got %d", len(records))
	}
	rec := records[0]
	if rec.Resolution != ledger.ResolutionRejected || rec.FieldKey != "color" || rec.Writer != "bob" {
		t.Fatalf("unexpected record: %#v", rec)
	}
}

func TestApplyLatestOnMissingSample(t *testing.T) {
	coord, _ := newCoordinator(t)
	_, err := coord.ApplyLatest(context.Background(), "alice", "imgs/none.jpg", ledger.Delta{AddTags: []string{"x"}})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
