package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"curator/internal/adapter"
	"curator/internal/jobs"
	"curator/internal/runner"
)

// ManifestFileName is the per-job manifest written into the output directory.
const ManifestFileName = "manifest.json"

// Manifest summarizes one export job: what was requested, how each item
// ended, and where the artifacts live.
type Manifest struct {
	JobID     string         `json:"job_id"`
	Format    string         `json:"format"`
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	OutputDir string         `json:"output_dir"`
	IndexPath string         `json:"index_path,omitempty"`
	Summary   jobs.Progress  `json:"summary"`
	Items     []ManifestItem `json:"items"`
}

// ManifestItem is one sample's outcome in the manifest.
type ManifestItem struct {
	SampleID string `json:"sample_id"`
	Outcome  string `json:"outcome"`
	Artifact string `json:"artifact,omitempty"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// WriteManifest renders the job manifest into the output directory and
// returns its path. Pre-skipped items recorded at job creation are included
// alongside the runner's results.
func WriteManifest(job *jobs.Job, adapterManifest *adapter.Manifest, artifacts []adapter.Artifact, results []runner.ItemResult) (string, error) {
	artifactBySample := make(map[string]string, len(artifacts))
	for _, art := range artifacts {
		artifactBySample[art.SampleID] = art.Path
	}

	manifest := Manifest{
		JobID:     job.ID,
		Format:    job.Format,
		SessionID: job.SessionID,
		CreatedAt: time.Now().UTC(),
		OutputDir: job.OutputDir,
	}
	if adapterManifest != nil {
		manifest.IndexPath = adapterManifest.IndexPath
	}

	for _, preSkipped := range job.ItemErrors {
		manifest.Items = append(manifest.Items, ManifestItem{
			SampleID: preSkipped.SampleID,
			Outcome:  string(runner.OutcomeSkipped),
			Error:    preSkipped.Message,
		})
		manifest.Summary.Skipped++
	}

	sorted := append([]runner.ItemResult{}, results...)
	runner.SortResults(sorted)
	for _, res := range sorted {
		item := ManifestItem{
			SampleID: res.Entry.SampleID,
			Outcome:  string(res.Outcome),
			Artifact: artifactBySample[res.Entry.SampleID],
			Attempts: res.Attempts,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		manifest.Items = append(manifest.Items, item)

		switch res.Outcome {
		case runner.OutcomeSucceeded:
			manifest.Summary.Succeeded++
		case runner.OutcomeFailed:
			manifest.Summary.Failed++
		case runner.OutcomeSkipped:
			manifest.Summary.Skipped++
		}
	}
	manifest.Summary.Total = len(manifest.Items)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(job.OutputDir, ManifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// artifactLog collects encoded artifacts per job across worker goroutines.
type artifactLog struct {
	mu   sync.Mutex
	byID map[string][]adapter.Artifact
}

func newArtifactLog() *artifactLog {
	return &artifactLog{byID: make(map[string][]adapter.Artifact)}
}

func (l *artifactLog) reset(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[jobID] = nil
}

func (l *artifactLog) add(jobID string, artifact adapter.Artifact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[jobID] = append(l.byID[jobID], artifact)
}

func (l *artifactLog) take(jobID string) []adapter.Artifact {
	l.mu.Lock()
	defer l.mu.Unlock()
	artifacts := l.byID[jobID]
	delete(l.byID, jobID)
	return artifacts
}
