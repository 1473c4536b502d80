// Package export turns a session's selection into a durable export job. Job
// creation captures an immutable snapshot of every selected sample, so ledger
// edits made after submission never change what gets encoded.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"curator/internal/adapter"
	"curator/internal/config"
	"curator/internal/jobs"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/selection"
	"curator/internal/services"
)

// Pipeline creates export jobs from selections.
type Pipeline struct {
	cfg        *config.Config
	ledger     *ledger.Store
	jobs       *jobs.Store
	selections *selection.Manager
	registry   *adapter.Registry
	logger     *slog.Logger
}

// NewPipeline wires the export pipeline.
func NewPipeline(cfg *config.Config, ledgerStore *ledger.Store, jobStore *jobs.Store, selections *selection.Manager, registry *adapter.Registry, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		ledger:     ledgerStore,
		jobs:       jobStore,
		selections: selections,
		registry:   registry,
		logger:     logger,
	}
}

// CreateJob validates the request, snapshots the session's selection, and
// enqueues an export job. Samples deleted between selection and submission
// are pre-recorded as skipped instead of failing the whole job.
func (p *Pipeline) CreateJob(ctx context.Context, sessionID, format string) (*jobs.Job, error) {
	if _, err := p.registry.Lookup(format); err != nil {
		return nil, err
	}

	selected := p.selections.Snapshot(sessionID)
	if len(selected) == 0 {
		return nil, services.Wrap(services.ErrEmptySelection, "export", "create-job", fmt.Sprintf("session %s has no selection", sessionID), nil)
	}

	snapshot := make([]jobs.SnapshotEntry, 0, len(selected))
	var preSkipped []jobs.ItemError
	for _, sampleID := range selected {
		sample, err := p.ledger.Get(ctx, sampleID)
		if errors.Is(err, services.ErrNotFound) {
			preSkipped = append(preSkipped, jobs.ItemError{
				SampleID: sampleID,
				Kind:     "not_found",
				Message:  "sample disappeared before snapshot",
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, jobs.SnapshotEntry{
			SampleID: sample.ID,
			MediaRef: sample.MediaRef,
			Tags:     append([]string{}, sample.Tags...),
			Fields:   sample.Fields,
			Version:  sample.Version,
		})
	}

	job, err := p.jobs.Create(ctx, &jobs.Job{
		Kind:      jobs.KindExport,
		Format:    format,
		SessionID: sessionID,
		OutputDir: p.outputDir(format),
		Snapshot:  snapshot,
	})
	if err != nil {
		return nil, err
	}

	if len(preSkipped) > 0 {
		progress := job.Progress
		progress.Total = len(selected)
		progress.Skipped = len(preSkipped)
		if err := p.jobs.UpdateProgress(ctx, job.ID, progress, preSkipped); err != nil {
			return nil, err
		}
		job.Progress = progress
		job.ItemErrors = preSkipped
	}

	p.logger.Info("export job queued",
		logging.String(logging.FieldComponent, "export"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("format", format),
		logging.Int("samples", len(snapshot)),
		logging.Int("skipped", len(preSkipped)))
	return job, nil
}

func (p *Pipeline) outputDir(format string) string {
	stamp := time.Now().UTC().Format("20060102T150405")
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return filepath.Join(p.cfg.ExportDir, fmt.Sprintf("%s-%s-%s", format, stamp, short))
}
