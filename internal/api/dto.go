package api

import (
	"time"

	"curator/internal/jobs"
	"curator/internal/ledger"
)

// SampleView is the wire representation of a ledger sample.
type SampleView struct {
	ID             string         `json:"id"`
	MediaRef       string         `json:"media_ref"`
	Tags           []string       `json:"tags"`
	Fields         map[string]any `json:"fields"`
	Version        int64          `json:"version"`
	LastModifiedBy string         `json:"last_modified_by,omitempty"`
	LastModifiedAt time.Time      `json:"last_modified_at,omitempty"`
}

// JobView is the wire representation of a job.
type JobView struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	Status       string           `json:"status"`
	Format       string           `json:"format,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	OutputDir    string           `json:"output_dir,omitempty"`
	ManifestPath string           `json:"manifest_path,omitempty"`
	Progress     jobs.Progress    `json:"progress"`
	ItemErrors   []jobs.ItemError `json:"item_errors,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TagRequest is a tag edit against one sample. BaseVersion zero means "apply
// against whatever is current"; a positive value enables conflict detection
// for edits made from a read snapshot.
type TagRequest struct {
	Writer      string   `json:"writer"`
	SampleID    string   `json:"sample_id"`
	BaseVersion int64    `json:"base_version,omitempty"`
	AddTags     []string `json:"add_tags,omitempty"`
	RemoveTags  []string `json:"remove_tags,omitempty"`
}

// FieldRequest sets fields on one sample.
type FieldRequest struct {
	Writer      string         `json:"writer"`
	SampleID    string         `json:"sample_id"`
	BaseVersion int64          `json:"base_version,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// BulkFieldRequest sets the same fields on many samples.
type BulkFieldRequest struct {
	Writer    string         `json:"writer"`
	SampleIDs []string       `json:"sample_ids"`
	Fields    map[string]any `json:"fields"`
}

// BulkFieldResult reports one sample's outcome in a bulk assignment.
type BulkFieldResult struct {
	SampleID string `json:"sample_id"`
	Version  int64  `json:"version,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ConflictView is the wire representation of a recorded conflict.
type ConflictView struct {
	SampleID        string    `json:"sample_id"`
	BaseVersion     int64     `json:"base_version"`
	IncomingVersion int64     `json:"incoming_version"`
	FieldKey        string    `json:"field_key,omitempty"`
	Resolution      string    `json:"resolution"`
	Writer          string    `json:"writer"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func sampleView(sample *ledger.Sample) SampleView {
	return SampleView{
		ID:             sample.ID,
		MediaRef:       sample.MediaRef,
		Tags:           sample.Tags,
		Fields:         sample.Fields,
		Version:        sample.Version,
		LastModifiedBy: sample.LastModifiedBy,
		LastModifiedAt: sample.LastModifiedAt,
	}
}

func jobView(job *jobs.Job) JobView {
	return JobView{
		ID:           job.ID,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		Format:       job.Format,
		SessionID:    job.SessionID,
		OutputDir:    job.OutputDir,
		ManifestPath: job.ManifestPath,
		Progress:     job.Progress,
		ItemErrors:   job.ItemErrors,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func conflictView(rec ledger.ConflictRecord) ConflictView {
	return ConflictView{
		SampleID:        rec.SampleID,
		BaseVersion:     rec.BaseVersion,
		IncomingVersion: rec.IncomingVersion,
		FieldKey:        rec.FieldKey,
		Resolution:      string(rec.Resolution),
		Writer:          rec.Writer,
		RecordedAt:      rec.RecordedAt,
	}
}
