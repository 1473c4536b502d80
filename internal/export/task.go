package export

import (
	"context"
	"fmt"
	"os"

	"curator/internal/adapter"
	"curator/internal/jobs"
	"curator/internal/runner"
)

// Task executes export jobs item by item: resolve the adapter, encode every
// snapshot entry, then finalize the layout and write the job manifest.
type Task struct {
	registry *adapter.Registry
	jobStore *jobs.Store

	// artifact paths per job, keyed by sample id. Only touched by the
	// runner's workers for a single job at a time per entry.
	artifacts *artifactLog
}

// NewTask constructs the export task.
func NewTask(registry *adapter.Registry, jobStore *jobs.Store) *Task {
	return &Task{registry: registry, jobStore: jobStore, artifacts: newArtifactLog()}
}

func (t *Task) Kind() jobs.Kind {
	return jobs.KindExport
}

// Prepare creates the job's output directory. The format was validated at
// job creation; a missing adapter here means the registry changed under us.
func (t *Task) Prepare(ctx context.Context, job *jobs.Job) error {
	if _, err := t.registry.Lookup(job.Format); err != nil {
		return err
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	t.artifacts.reset(job.ID)
	return nil
}

func (t *Task) Process(ctx context.Context, job *jobs.Job, entry jobs.SnapshotEntry, heartbeat func()) error {
	a, err := t.registry.Lookup(job.Format)
	if err != nil {
		return err
	}

	rec := adapter.Record{
		SampleID: entry.SampleID,
		MediaRef: entry.MediaRef,
		Tags:     entry.Tags,
		Fields:   entry.Fields,
	}
	if !a.Supports(rec) {
		return fmt.Errorf("%w: format %s cannot represent sample %s", runner.ErrSkipItem, job.Format, entry.SampleID)
	}

	artifact, err := a.Encode(ctx, rec, adapter.EncodeOptions{OutputDir: job.OutputDir, Heartbeat: heartbeat})
	if err != nil {
		return err
	}
	t.artifacts.add(job.ID, *artifact)
	return nil
}

// Finalize runs the adapter's finalize step and writes the job manifest.
func (t *Task) Finalize(ctx context.Context, job *jobs.Job, results []runner.ItemResult) error {
	a, err := t.registry.Lookup(job.Format)
	if err != nil {
		return err
	}

	artifacts := t.artifacts.take(job.ID)
	adapterManifest, err := a.Finalize(ctx, job.OutputDir, artifacts)
	if err != nil {
		return err
	}

	manifestPath, err := WriteManifest(job, adapterManifest, artifacts, results)
	if err != nil {
		return err
	}
	return t.jobStore.SetManifestPath(ctx, job.ID, manifestPath)
}
