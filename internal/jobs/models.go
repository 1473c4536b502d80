// Package jobs persists background job records and owns the job status
// state machine. The runner drives transitions; every transition is
// validated here so an illegal hop can never reach the database.
package jobs

import (
	"fmt"
	"time"

	"curator/internal/services"
)

// Kind identifies what a job does.
type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStalled   Status = "stalled"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusPaused, StatusStalled, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:    {StatusRunning, StatusCancelled},
	StatusStalled:   {StatusRetrying, StatusFailed, StatusCancelled},
	StatusRetrying:  {StatusRunning, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransitionTo reports whether moving to next is a legal hop.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether the status is a known state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// SnapshotEntry is one sample captured at job creation. The entry is
// immutable for the job's lifetime; later ledger edits never reach it.
type SnapshotEntry struct {
	SampleID string         `json:"sample_id"`
	MediaRef string         `json:"media_ref"`
	Tags     []string       `json:"tags"`
	Fields   map[string]any `json:"fields"`
	Version  int64          `json:"version"`
}

// Progress counts per-item outcomes.
type Progress struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Done reports whether every item has a final outcome.
func (p Progress) Done() bool {
	return p.Succeeded+p.Failed+p.Skipped >= p.Total
}

// ItemError records why one item did not succeed.
type ItemError struct {
	SampleID string `json:"sample_id"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// Job is one background unit of work.
type Job struct {
	ID            string
	Kind          Kind
	Status        Status
	Format        string
	SessionID     string
	OutputDir     string
	ManifestPath  string
	Snapshot      []SnapshotEntry
	Progress      Progress
	ItemErrors    []ItemError
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat time.Time
}

// TransitionError reports an illegal status hop.
type TransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: illegal transition %s -> %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == services.ErrValidation
}
