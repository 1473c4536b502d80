// Package importer syncs the media library into the ledger. A sync job walks
// the media root, registers unseen files as samples, and refreshes tags and
// fields from .anno sidecars whose content changed since the last sync.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"curator/internal/adapter/annojson"
	"curator/internal/coordinator"
	"curator/internal/jobs"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/mediastore"
	"curator/internal/runner"
)

const (
	syncWriter       = "library-sync"
	sidecarFieldKey  = "sidecar_checksum"
	sidecarPathField = "sidecar"
)

// Importer creates and executes library sync jobs.
type Importer struct {
	media    *mediastore.Store
	ledger   *ledger.Store
	coord    *coordinator.Coordinator
	jobStore *jobs.Store
	logger   *slog.Logger
}

// New wires the importer.
func New(media *mediastore.Store, ledgerStore *ledger.Store, coord *coordinator.Coordinator, jobStore *jobs.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{media: media, ledger: ledgerStore, coord: coord, jobStore: jobStore, logger: logger}
}

// CreateSyncJob enumerates the media library and enqueues an import job with
// one snapshot entry per media file.
func (i *Importer) CreateSyncJob(ctx context.Context) (*jobs.Job, error) {
	entries, err := i.media.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make([]jobs.SnapshotEntry, 0, len(entries))
	for _, entry := range entries {
		fields := map[string]any{}
		if entry.SidecarPath != "" {
			fields[sidecarPathField] = entry.SidecarPath
		}
		snapshot = append(snapshot, jobs.SnapshotEntry{
			SampleID: entry.SampleID,
			MediaRef: entry.AbsPath,
			Fields:   fields,
		})
	}

	job, err := i.jobStore.Create(ctx, &jobs.Job{Kind: jobs.KindImport, Snapshot: snapshot})
	if err != nil {
		return nil, err
	}
	i.logger.Info("library sync queued",
		logging.String(logging.FieldComponent, "importer"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("media_files", len(snapshot)))
	return job, nil
}

func (i *Importer) Kind() jobs.Kind {
	return jobs.KindImport
}

func (i *Importer) Prepare(ctx context.Context, job *jobs.Job) error {
	return nil
}

// Process registers one media file and refreshes its sidecar metadata. A
// sample whose sidecar checksum is unchanged is left alone; unchanged samples
// still count as succeeded.
func (i *Importer) Process(ctx context.Context, job *jobs.Job, entry jobs.SnapshotEntry, heartbeat func()) error {
	heartbeat()

	sample, _, err := i.ledger.Register(ctx, syncWriter, entry.SampleID, entry.MediaRef, nil)
	if err != nil {
		return err
	}
	heartbeat()

	sidecarPath, _ := entry.Fields[sidecarPathField].(string)
	if sidecarPath == "" {
		// Sidecar removed since the last sync: drop the stale checksum so a
		// restored sidecar is re-imported.
		if _, had := sample.Fields[sidecarFieldKey]; had {
			_, err = i.coord.ApplyLatest(ctx, syncWriter, sample.ID, ledger.Delta{
				SetFields: map[string]any{sidecarFieldKey: nil},
			})
			return err
		}
		return nil
	}

	checksum, err := mediastore.Checksum(sidecarPath)
	if err != nil {
		return err
	}
	heartbeat()
	if stored, _ := sample.Fields[sidecarFieldKey].(string); stored == checksum {
		return nil
	}

	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("read sidecar %s: %w", sidecarPath, err)
	}
	tags, fields, err := annojson.DecodeSidecar(data)
	if err != nil {
		return fmt.Errorf("%w: sidecar %s is malformed", runner.ErrSkipItem, sidecarPath)
	}
	fields[sidecarFieldKey] = checksum
	heartbeat()

	_, err = i.coord.ApplyLatest(ctx, syncWriter, sample.ID, ledger.Delta{AddTags: tags, SetFields: fields})
	return err
}

func (i *Importer) Finalize(ctx context.Context, job *jobs.Job, results []runner.ItemResult) error {
	var succeeded, failed, skipped int
	for _, res := range results {
		switch res.Outcome {
		case runner.OutcomeSucceeded:
			succeeded++
		case runner.OutcomeFailed:
			failed++
		case runner.OutcomeSkipped:
			skipped++
		}
	}
	i.logger.Info("library sync finished",
		logging.String(logging.FieldComponent, "importer"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("succeeded", succeeded),
		logging.Int("failed", failed),
		logging.Int("skipped", skipped))
	return nil
}
