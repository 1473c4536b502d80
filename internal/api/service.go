// Package api is the service facade every outer surface goes through. The
// HTTP handlers, the control socket, and the CLI all call these methods;
// none of them reach into the stores directly.
package api

import (
	"context"
	"log/slog"
	"strings"

	"curator/internal/adapter"
	"curator/internal/coordinator"
	"curator/internal/export"
	"curator/internal/importer"
	"curator/internal/jobs"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/runner"
	"curator/internal/selection"
	"curator/internal/services"
)

// Service exposes curator's operations behind one surface.
type Service struct {
	ledger     *ledger.Store
	coord      *coordinator.Coordinator
	selections *selection.Manager
	pipeline   *export.Pipeline
	importer   *importer.Importer
	jobStore   *jobs.Store
	runner     *runner.Runner
	registry   *adapter.Registry
	logger     *slog.Logger
}

// NewService wires the facade.
func NewService(
	ledgerStore *ledger.Store,
	coord *coordinator.Coordinator,
	selections *selection.Manager,
	pipeline *export.Pipeline,
	imp *importer.Importer,
	jobStore *jobs.Store,
	run *runner.Runner,
	registry *adapter.Registry,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		ledger:     ledgerStore,
		coord:      coord,
		selections: selections,
		pipeline:   pipeline,
		importer:   imp,
		jobStore:   jobStore,
		runner:     run,
		registry:   registry,
		logger:     logger,
	}
}

// Tag applies a tag edit. With a base version the coordinator merges or
// rejects against concurrent writes; without one the edit lands on the
// current version.
func (s *Service) Tag(ctx context.Context, req TagRequest) (SampleView, error) {
	if err := requireWriter(req.Writer, "tag"); err != nil {
		return SampleView{}, err
	}
	delta := ledger.Delta{AddTags: req.AddTags, RemoveTags: req.RemoveTags}
	if delta.Empty() {
		return SampleView{}, services.Wrap(services.ErrValidation, "api", "tag", "no tag changes given", nil)
	}

	var (
		sample *ledger.Sample
		err    error
	)
	if req.BaseVersion > 0 {
		sample, err = s.coord.Apply(ctx, req.Writer, req.SampleID, req.BaseVersion, delta)
	} else {
		sample, err = s.coord.ApplyLatest(ctx, req.Writer, req.SampleID, delta)
	}
	if err != nil {
		return SampleView{}, err
	}
	return sampleView(sample), nil
}

// SetFields writes field values on one sample.
func (s *Service) SetFields(ctx context.Context, req FieldRequest) (SampleView, error) {
	if err := requireWriter(req.Writer, "set-fields"); err != nil {
		return SampleView{}, err
	}
	if len(req.Fields) == 0 {
		return SampleView{}, services.Wrap(services.ErrValidation, "api", "set-fields", "no fields given", nil)
	}

	delta := ledger.Delta{SetFields: req.Fields}
	var (
		sample *ledger.Sample
		err    error
	)
	if req.BaseVersion > 0 {
		sample, err = s.coord.Apply(ctx, req.Writer, req.SampleID, req.BaseVersion, delta)
	} else {
		sample, err = s.coord.ApplyLatest(ctx, req.Writer, req.SampleID, delta)
	}
	if err != nil {
		return SampleView{}, err
	}
	return sampleView(sample), nil
}

// BulkSetFields assigns the same fields across many samples. Failures are
// per-sample; one missing sample never aborts the rest.
func (s *Service) BulkSetFields(ctx context.Context, req BulkFieldRequest) ([]BulkFieldResult, error) {
	if err := requireWriter(req.Writer, "bulk-set-fields"); err != nil {
		return nil, err
	}
	if len(req.Fields) == 0 || len(req.SampleIDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "api", "bulk-set-fields", "sample ids and fields are required", nil)
	}

	results := make([]BulkFieldResult, 0, len(req.SampleIDs))
	for _, sampleID := range req.SampleIDs {
		sample, err := s.coord.ApplyLatest(ctx, req.Writer, sampleID, ledger.Delta{SetFields: req.Fields})
		if err != nil {
			results = append(results, BulkFieldResult{SampleID: sampleID, Error: err.Error()})
			continue
		}
		results = append(results, BulkFieldResult{SampleID: sampleID, Version: sample.Version})
	}
	return results, nil
}

// GetSample fetches one sample.
func (s *Service) GetSample(ctx context.Context, sampleID string) (SampleView, error) {
	sample, err := s.ledger.Get(ctx, sampleID)
	if err != nil {
		return SampleView{}, err
	}
	return sampleView(sample), nil
}

// ListSamples returns every sample in the ledger.
func (s *Service) ListSamples(ctx context.Context) ([]SampleView, error) {
	samples, err := s.ledger.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]SampleView, 0, len(samples))
	for _, sample := range samples {
		views = append(views, sampleView(sample))
	}
	return views, nil
}

// Conflicts returns recorded merge and rejection events for a sample.
func (s *Service) Conflicts(ctx context.Context, sampleID string) ([]ConflictView, error) {
	records, err := s.ledger.ConflictsFor(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	views := make([]ConflictView, 0, len(records))
	for _, rec := range records {
		views = append(views, conflictView(rec))
	}
	return views, nil
}

// Select adds samples to the session's selection after verifying they exist.
func (s *Service) Select(ctx context.Context, sessionID string, sampleIDs []string) (int, error) {
	for _, sampleID := range sampleIDs {
		if _, err := s.ledger.Get(ctx, sampleID); err != nil {
			return s.selections.Len(sessionID), err
		}
		s.selections.Add(sessionID, sampleID)
	}
	return s.selections.Len(sessionID), nil
}

// Deselect removes samples from the session's selection.
func (s *Service) Deselect(sessionID string, sampleIDs []string) int {
	for _, sampleID := range sampleIDs {
		s.selections.Remove(sessionID, sampleID)
	}
	return s.selections.Len(sessionID)
}

// ClearSelection empties the session's selection.
func (s *Service) ClearSelection(sessionID string) {
	s.selections.Clear(sessionID)
}

// Selection returns the session's selected sample ids in insertion order.
func (s *Service) Selection(sessionID string) []string {
	return s.selections.Snapshot(sessionID)
}

// Export snapshots the session's selection into a queued export job.
func (s *Service) Export(ctx context.Context, sessionID, format string) (JobView, error) {
	job, err := s.pipeline.CreateJob(ctx, sessionID, format)
	if err != nil {
		return JobView{}, err
	}
	return jobView(job), nil
}

// SyncLibrary enqueues a media library sync job.
func (s *Service) SyncLibrary(ctx context.Context) (JobView, error) {
	job, err := s.importer.CreateSyncJob(ctx)
	if err != nil {
		return JobView{}, err
	}
	return jobView(job), nil
}

// JobStatus returns one job's current state.
func (s *Service) JobStatus(ctx context.Context, jobID string) (JobView, error) {
	job, err := s.jobStore.Get(ctx, jobID)
	if err != nil {
		return JobView{}, err
	}
	return jobView(job), nil
}

// ListJobs returns all jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]JobView, error) {
	all, err := s.jobStore.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(all))
	for _, job := range all {
		views = append(views, jobView(job))
	}
	return views, nil
}

// CancelJob stops a job, preserving any artifacts already written.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	return s.runner.Cancel(ctx, jobID)
}

// PauseJob stops dispatching new items for a running job.
func (s *Service) PauseJob(ctx context.Context, jobID string) error {
	return s.runner.Pause(ctx, jobID)
}

// ResumeJob restarts a paused job.
func (s *Service) ResumeJob(ctx context.Context, jobID string) error {
	return s.runner.Resume(ctx, jobID)
}

// Formats lists the registered export formats.
func (s *Service) Formats() []string {
	return s.registry.IDs()
}

func requireWriter(writer, operation string) error {
	if strings.TrimSpace(writer) == "" {
		return services.Wrap(services.ErrValidation, "api", operation, "writer is required", nil)
	}
	return nil
}
