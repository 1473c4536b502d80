package jobs_test

import (
	"context"
	"errors"
	"testing"

	"curator/internal/jobs"
	"curator/internal/services"
	"curator/internal/testsupport"
)

func newStore(t *testing.T) *jobs.Store {
	t.Helper()
	return testsupport.MustOpenJobs(t, testsupport.NewConfig(t))
}

func exportJob() *jobs.Job {
	return &jobs.Job{
		Kind:      jobs.KindExport,
		Format:    "annojson",
		SessionID: "s1",
		OutputDir: "/tmp/out",
		Snapshot: []jobs.SnapshotEntry{
			{SampleID: "imgs/a.jpg", MediaRef: "/media/imgs/a.jpg", Tags: []string{"person"}, Version: 2},
			{SampleID: "imgs/b.jpg", MediaRef: "/media/imgs/b.jpg", Version: 1},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, exportJob())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Status != jobs.StatusQueued {
		t.Fatalf("unexpected created job: %#v", created)
	}
	if created.Progress.Total != 2 {
		t.Fatalf("expected total 2 from snapshot size, got %d", created.Progress.Total)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Snapshot) != 2 || got.Snapshot[0].SampleID != "imgs/a.jpg" || got.Snapshot[0].Version != 2 {
		t.Fatalf("snapshot did not round-trip: %#v", got.Snapshot)
	}
	if got.Format != "annojson" || got.SessionID != "s1" {
		t.Fatalf("unexpected job: %#v", got)
	}
}

func TestGetMissingJob(t *testing.T) {
	store := newStore(t)
	_, err := store.Get(context.Background(), "no-such-job")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	store := newStore(t)
	_, err := store.Create(context.Background(), &jobs.Job{Kind: "mystery"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNextQueuedReturnsOldest(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, exportJob())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, exportJob()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("NextQueued: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest job %s, got %#v", first.ID, next)
	}

	if _, err := store.Transition(ctx, first.ID, jobs.StatusRunning, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	next, err = store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("NextQueued: %v", err)
	}
	if next == nil || next.ID == first.ID {
		t.Fatalf("expected second job, got %#v", next)
	}
}

func TestNextQueuedEmpty(t *testing.T) {
	store := newStore(t)
	next, err := store.NextQueued(context.Background())
	if err != nil {
		t.Fatalf("NextQueued: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil, got %#v", next)
	}
}

func TestTransitionValidatesHops(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, exportJob())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// queued -> completed is not a legal hop.
	_, err = store.Transition(ctx, job.ID, jobs.StatusCompleted, "")
	var te *jobs.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != jobs.StatusQueued || te.To != jobs.StatusCompleted {
		t.Fatalf("unexpected transition error: %#v", te)
	}

	// Database must still hold the old status.
	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusQueued {
		t.Fatalf("illegal transition persisted: %s", got.Status)
	}

	// Walk the full retry path.
	path := []jobs.Status{jobs.StatusRunning, jobs.StatusStalled, jobs.StatusRetrying, jobs.StatusRunning, jobs.StatusCompleted}
	for _, next := range path {
		if _, err := store.Transition(ctx, job.ID, next, ""); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	// Terminal states admit nothing.
	if _, err := store.Transition(ctx, job.ID, jobs.StatusRunning, ""); err == nil {
		t.Fatal("expected transition out of completed to fail")
	}
}

func TestTransitionRecordsFailureMessage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, exportJob())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Transition(ctx, job.ID, jobs.StatusRunning, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := store.Transition(ctx, job.ID, jobs.StatusFailed, "disk full"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusFailed || got.ErrorMessage != "disk full" {
		t.Fatalf("unexpected job: status=%s message=%q", got.Status, got.ErrorMessage)
	}
}

func TestUpdateProgressAndHeartbeat(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, exportJob())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	progress := jobs.Progress{Total: 2, Succeeded: 1, Failed: 1}
	itemErrors := []jobs.ItemError{{SampleID: "imgs/b.jpg", Kind: "stall_timeout", Message: "no heartbeat", Attempts: 4}}
	if err := store.UpdateProgress(ctx, job.ID, progress, itemErrors); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Progress != progress {
		t.Fatalf("unexpected progress: %#v", got.Progress)
	}
	if len(got.ItemErrors) != 1 || got.ItemErrors[0].Kind != "stall_timeout" || got.ItemErrors[0].Attempts != 4 {
		t.Fatalf("unexpected item errors: %#v", got.ItemErrors)
	}
	if got.LastHeartbeat.IsZero() {
		t.Fatal("expected heartbeat timestamp")
	}

	if err := store.UpdateProgress(ctx, "no-such-job", progress, nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetManifestPath(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, exportJob())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetManifestPath(ctx, job.ID, "/tmp/out/manifest.json"); err != nil {
		t.Fatalf("SetManifestPath: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ManifestPath != "/tmp/out/manifest.json" {
		t.Fatalf("unexpected manifest path %q", got.ManifestPath)
	}
}
