// Package coordinator arbitrates concurrent ledger writes from multiple
// sessions. Writes are optimistic: the caller presents the version its edit
// was based on. Tag-only deltas are commutative set operations and are merged
// automatically when the version race is lost; field overwrites are not, and
// are rejected with a persisted conflict record for manual resolution.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"curator/internal/ledger"
	"curator/internal/logging"
)

// Coordinator routes ledger mutations and applies the merge policy.
type Coordinator struct {
	store  *ledger.Store
	logger *slog.Logger
}

// New constructs a coordinator over the given ledger store.
func New(store *ledger.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		logger: logging.NewComponentLogger(logger, "coordinator"),
	}
}

// Apply commits a delta on behalf of writer, based on baseVersion.
//
// On a version mismatch, tag-only deltas are retried exactly once against the
// refreshed version (set union makes the merge order-independent) and a
// Merged conflict record is kept for audit. Deltas touching fields are never
// auto-merged: a Rejected conflict record is persisted and the ConflictError
// is returned to the caller.
func (c *Coordinator) Apply(ctx context.Context, writer, sampleID string, baseVersion int64, delta ledger.Delta) (*ledger.Sample, error) {
	sample, err := c.store.Write(ctx, writer, sampleID, baseVersion, delta)
	if err == nil {
		return sample, nil
	}

	var conflict *ledger.ConflictError
	if !errors.As(err, &conflict) {
		return nil, err
	}

	if !delta.TagsOnly() {
		record := ledger.ConflictRecord{
			SampleID:        sampleID,
			BaseVersion:     baseVersion,
			IncomingVersion: conflict.Current,
			FieldKey:        joinFieldKeys(delta.SetFields),
			Resolution:      ledger.ResolutionRejected,
			Writer:          writer,
		}
		if recErr := c.store.RecordConflict(ctx, record); recErr != nil {
			c.logger.Error("failed to persist conflict record",
				logging.String(logging.FieldSampleID, sampleID),
				logging.Error(recErr))
		}
		c.logger.Warn("field write rejected on version conflict",
			logging.String(logging.FieldSampleID, sampleID),
			logging.String("writer", writer),
			logging.Int64("base_version", baseVersion),
			logging.Int64("current_version", conflict.Current))
		return nil, err
	}

	retried, retryErr := c.retryTagMerge(ctx, writer, sampleID, delta)
	if retryErr != nil {
		return nil, retryErr
	}

	record := ledger.ConflictRecord{
		SampleID:        sampleID,
		BaseVersion:     baseVersion,
		IncomingVersion: retried.Version,
		Resolution:      ledger.ResolutionMerged,
		Writer:          writer,
	}
	if recErr := c.store.RecordConflict(ctx, record); recErr != nil {
		c.logger.Error("failed to persist merge record",
			logging.String(logging.FieldSampleID, sampleID),
			logging.Error(recErr))
	}
	c.logger.Debug("tag delta auto-merged",
		logging.String(logging.FieldSampleID, sampleID),
		logging.Int64("base_version", baseVersion),
		logging.Int64("merged_version", retried.Version))
	return retried, nil
}

// ApplyLatest reads the current version and applies the delta against it.
// Used by callers that edit without holding a version token.
func (c *Coordinator) ApplyLatest(ctx context.Context, writer, sampleID string, delta ledger.Delta) (*ledger.Sample, error) {
	current, err := c.store.Get(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	return c.Apply(ctx, writer, sampleID, current.Version, delta)
}

func (c *Coordinator) retryTagMerge(ctx context.Context, writer, sampleID string, delta ledger.Delta) (*ledger.Sample, error) {
	current, err := c.store.Get(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	return c.store.Write(ctx, writer, sampleID, current.Version, delta)
}

func joinFieldKeys(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
