// Package ledger is the durable, versioned store of per-sample metadata.
// Every accepted write bumps the sample version; writers must present the
// version they based their edit on, and a mismatch fails with ConflictError
// instead of silently overwriting.
package ledger

import (
	"fmt"
	"time"

	"curator/internal/services"
)

// Sample is one media item's metadata record. The id and media reference are
// assigned by the external media store and never modified here.
type Sample struct {
	ID             string
	MediaRef       string
	Tags           []string
	Fields         map[string]any
	Version        int64
	LastModifiedBy string
	LastModifiedAt time.Time
}

// HasTag reports whether the sample carries the given tag.
func (s *Sample) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Delta describes one write: tag changes are set-additive/subtractive,
// field changes are key overwrites.
type Delta struct {
	AddTags    []string
	RemoveTags []string
	// SetFields assigns field values. A nil value deletes the key.
	SetFields map[string]any
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.AddTags) == 0 && len(d.RemoveTags) == 0 && len(d.SetFields) == 0
}

// TagsOnly reports whether the delta touches no fields. Tag-only deltas are
// commutative and eligible for automatic merge by the coordinator.
func (d Delta) TagsOnly() bool {
	return len(d.SetFields) == 0
}

// ConflictError reports a rejected write whose expected version no longer
// matches the stored version.
type ConflictError struct {
	SampleID  string
	Current   int64
	Attempted int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on sample %s: current %d, attempted %d", e.SampleID, e.Current, e.Attempted)
}

// Is tags ConflictError with the shared conflict sentinel.
func (e *ConflictError) Is(target error) bool {
	return target == services.ErrConflict
}

// Resolution describes how a concurrent-write collision was settled.
type Resolution string

const (
	ResolutionMerged      Resolution = "merged"
	ResolutionRejected    Resolution = "rejected"
	ResolutionOverwritten Resolution = "overwritten"
)

// ConflictRecord is the audit trail entry for a write collision. Records are
// retained indefinitely; they are never pruned by curator.
type ConflictRecord struct {
	ID              int64
	SampleID        string
	BaseVersion     int64
	IncomingVersion int64
	FieldKey        string
	Resolution      Resolution
	Writer          string
	RecordedAt      time.Time
}

// AuditEntry records one accepted write.
type AuditEntry struct {
	ID         int64
	SampleID   string
	Version    int64
	Writer     string
	RecordedAt time.Time
}
