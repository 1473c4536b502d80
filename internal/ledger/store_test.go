package ledger_test

import (
	"context"
	"errors"
	"testing"

	"curator/internal/ledger"
	"curator/internal/services"
	"curator/internal/testsupport"
)

func TestRegisterAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	sample, created, err := store.Register(ctx, "importer", "imgs/0001.jpg", "/media/imgs/0001.jpg", map[string]any{"source": "survey"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !created {
		t.Fatal("expected sample to be created")
	}
	if sample.Version != 1 {
		t.Fatalf("expected version 1, got %d", sample.Version)
	}

	again, created, err := store.Register(ctx, "importer", "imgs/0001.jpg", "/media/imgs/0001.jpg", nil)
	if err != nil {
		t.Fatalf("Register existing: %v", err)
	}
	if created {
		t.Fatal("expected no new row for existing sample")
	}
	if again.Fields["source"] != "survey" {
		t.Fatalf("expected original fields preserved, got %#v", again.Fields)
	}

	if _, err := store.Get(ctx, "imgs/none.jpg"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWriteBumpsVersionAndAppendsAudit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/a.jpg", "/media/imgs/a.jpg")

	updated, err := store.Write(ctx, "alice", sample.ID, sample.Version, ledger.Delta{
		AddTags:   []string{"person", "outdoor"},
		SetFields: map[string]any{"quality": "good"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if !updated.HasTag("person") || !updated.HasTag("outdoor") {
		t.Fatalf("expected tags applied, got %v", updated.Tags)
	}
	if updated.Fields["quality"] != "good" {
		t.Fatalf("expected field set, got %#v", updated.Fields)
	}

	entries, err := store.AuditFor(ctx, sample.ID)
	if err != nil {
		t.Fatalf("AuditFor: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected register + write audit entries, got %d", len(entries))
	}
	if entries[1].Version != 2 || entries[1].Writer != "alice" {
		t.Fatalf("unexpected audit entry: %#v", entries[1])
	}
}

func TestWriteVersionMismatchReturnsConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/b.jpg", "/media/imgs/b.jpg")

	if _, err := store.Write(ctx, "alice", sample.ID, sample.Version, ledger.Delta{AddTags: []string{"cat"}}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	_, err := store.Write(ctx, "bob", sample.ID, sample.Version, ledger.Delta{SetFields: map[string]any{"color": "blue"}})
	var conflict *ledger.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Current != 2 || conflict.Attempted != 1 {
		t.Fatalf("unexpected conflict versions: %#v", conflict)
	}
	if !errors.Is(err, services.ErrConflict) {
		t.Fatal("expected conflict sentinel match")
	}

	// Losing write must not have touched the stored fields.
	current, err := store.Get(ctx, sample.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := current.Fields["color"]; ok {
		t.Fatalf("rejected write leaked into fields: %#v", current.Fields)
	}
}

func TestTagRemovalAndDedup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/c.jpg", "/media/imgs/c.jpg")

	first, err := store.Write(ctx, "alice", sample.ID, 1, ledger.Delta{AddTags: []string{"b", "a", "b", " "}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "a" || first.Tags[1] != "b" {
		t.Fatalf("expected sorted deduped tags, got %v", first.Tags)
	}

	second, err := store.Write(ctx, "alice", sample.ID, 2, ledger.Delta{RemoveTags: []string{"a", "missing"}})
	if err != nil {
		t.Fatalf("Write remove: %v", err)
	}
	if len(second.Tags) != 1 || second.Tags[0] != "b" {
		t.Fatalf("expected only b to remain, got %v", second.Tags)
	}
}

func TestNilFieldValueDeletesKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/d.jpg", "/media/imgs/d.jpg")

	first, err := store.Write(ctx, "alice", sample.ID, 1, ledger.Delta{
		SetFields: map[string]any{"quality": "good", "source": "survey"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	second, err := store.Write(ctx, "alice", sample.ID, first.Version, ledger.Delta{
		SetFields: map[string]any{"quality": nil},
	})
	if err != nil {
		t.Fatalf("Write delete: %v", err)
	}
	if _, ok := second.Fields["quality"]; ok {
		t.Fatalf("expected quality to be deleted, got %#v", second.Fields)
	}
	if second.Fields["source"] != "survey" {
		t.Fatalf("unrelated field lost: %#v", second.Fields)
	}
}

func TestConflictRecordsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	sample := testsupport.RegisterSample(t, store, "imgs/d.jpg", "/media/imgs/d.jpg")

	rec := ledger.ConflictRecord{
		SampleID:        sample.ID,
		BaseVersion:     3,
		IncomingVersion: 4,
		FieldKey:        "color",
		Resolution:      ledger.ResolutionRejected,
		Writer:          "bob",
	}
	if err := store.RecordConflict(ctx, rec); err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}

	records, err := store.ConflictsFor(ctx, sample.ID)
	if err != nil {
		t.Fatalf("ConflictsFor: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	got := records[0]
	if got.Resolution != ledger.ResolutionRejected || got.FieldKey != "color" || got.Writer != "bob" {
		t.Fatalf("unexpected record: %#v", got)
	}
	if got.RecordedAt.IsZero() {
		t.Fatal("expected recorded_at to be set")
	}
}
