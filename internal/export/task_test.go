package export_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"curator/internal/export"
	"curator/internal/jobs"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/runner"
	"curator/internal/testsupport"
)

func runExport(t *testing.T, f *fixture, jobID string) *jobs.Job {
	t.Helper()
	r := runner.New(f.cfg, f.jobs, logging.NewNop())
	r.RegisterTask(export.NewTask(f.registry, f.jobs))
	if err := r.RunJob(context.Background(), jobID); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := f.jobs.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return nil
}

func TestExportEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"imgs/a.jpg", "imgs/b.jpg"} {
		sample := testsupport.RegisterSample(t, f.ledger, id, "/media/"+id)
		if _, err := f.ledger.Write(ctx, "alice", sample.ID, sample.Version, ledger.Delta{
			AddTags:   []string{"reviewed"},
			SetFields: map[string]any{"height": 480.0, "width": 640.0},
		}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		f.selections.Add("s1", id)
	}

	job, err := f.pipeline.CreateJob(ctx, "s1", "annojson")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	final := runExport(t, f, job.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.Progress.Succeeded != 2 || final.Progress.Failed != 0 {
		t.Fatalf("unexpected progress: %#v", final.Progress)
	}

	// Artifacts and the adapter index must be on disk.
	for _, name := range []string{"a.anno", "b.anno", "index.json"} {
		if _, err := os.Stat(filepath.Join(job.OutputDir, name)); err != nil {
			t.Fatalf("expected %s in output dir: %v", name, err)
		}
	}

	if final.ManifestPath == "" {
		t.Fatal("expected manifest path on job")
	}
	data, err := os.ReadFile(final.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest export.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.JobID != job.ID || manifest.Format != "annojson" {
		t.Fatalf("unexpected manifest: %#v", manifest)
	}
	if manifest.Summary.Total != 2 || manifest.Summary.Succeeded != 2 {
		t.Fatalf("unexpected manifest summary: %#v", manifest.Summary)
	}
	if len(manifest.Items) != 2 || manifest.Items[0].SampleID != "imgs/a.jpg" || manifest.Items[0].Artifact == "" {
		t.Fatalf("unexpected manifest items: %#v", manifest.Items)
	}
}

func TestUnsupportedSamplesAreSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withDims := testsupport.RegisterSample(t, f.ledger, "imgs/sized.jpg", "/media/imgs/sized.jpg")
	if _, err := f.ledger.Write(ctx, "alice", withDims.ID, withDims.Version, ledger.Delta{
		SetFields: map[string]any{"height": 480.0, "width": 640.0},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	testsupport.RegisterSample(t, f.ledger, "imgs/bare.jpg", "/media/imgs/bare.jpg")

	f.selections.Add("s1", "imgs/sized.jpg")
	f.selections.Add("s1", "imgs/bare.jpg")

	job, err := f.pipeline.CreateJob(ctx, "s1", "vocxml")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	final := runExport(t, f, job.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Progress.Succeeded != 1 || final.Progress.Skipped != 1 {
		t.Fatalf("unexpected progress: %#v", final.Progress)
	}
	if len(final.ItemErrors) != 1 || final.ItemErrors[0].SampleID != "imgs/bare.jpg" {
		t.Fatalf("unexpected item errors: %#v", final.ItemErrors)
	}

	if _, err := os.Stat(filepath.Join(job.OutputDir, "sized.xml")); err != nil {
		t.Fatalf("expected sized.xml artifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(job.OutputDir, "bare.xml")); !os.IsNotExist(err) {
		t.Fatal("skipped sample must not produce an artifact")
	}
}

func TestPreSkippedSamplesAppearInManifest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sample := testsupport.RegisterSample(t, f.ledger, "imgs/a.jpg", "/media/imgs/a.jpg")
	f.selections.Add("s1", sample.ID)
	f.selections.Add("s1", "imgs/ghost.jpg")

	job, err := f.pipeline.CreateJob(ctx, "s1", "annojson")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	final := runExport(t, f, job.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}

	data, err := os.ReadFile(final.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest export.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.Summary.Total != 2 || manifest.Summary.Succeeded != 1 || manifest.Summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %#v", manifest.Summary)
	}
	var ghost *export.ManifestItem
	for i := range manifest.Items {
		if manifest.Items[i].SampleID == "imgs/ghost.jpg" {
			ghost = &manifest.Items[i]
		}
	}
	if ghost == nil || ghost.Outcome != "skipped" {
		t.Fatalf("expected ghost sample recorded as skipped: %#v", manifest.Items)
	}
}
