package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"curator/internal/config"
	"curator/internal/services"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the jobs database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JobsDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the backing database file path.
func (s *Store) Path() string {
	return s.path
}

// Create persists a new queued job. The job id is assigned here.
func (s *Store) Create(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "job must not be nil", nil)
	}
	if job.Kind != KindExport && job.Kind != KindImport {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", fmt.Sprintf("unknown job kind %q", job.Kind), nil)
	}

	job.ID = uuid.NewString()
	job.Status = StatusQueued
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Progress.Total = len(job.Snapshot)

	snapshotJSON, err := json.Marshal(job.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	progressJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return nil, fmt.Errorf("marshal progress: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, status, format, session_id, output_dir, snapshot_json, progress_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), string(job.Status), job.Format, job.SessionID, job.OutputDir,
		string(snapshotJSON), string(progressJSON),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get fetches a job by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns all jobs, newest first.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// NextQueued returns the oldest queued job, or nil when none is waiting.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		string(StatusQueued))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// Transition moves a job to the next status after validating the hop against
// the state machine. errorMessage is recorded for failed transitions and
// cleared otherwise.
func (s *Store) Transition(ctx context.Context, id string, next Status, errorMessage string) (*Job, error) {
	if !next.Valid() {
		return nil, services.Wrap(services.ErrValidation, "jobs", "transition", fmt.Sprintf("unknown status %q", next), nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "transition", fmt.Sprintf("job %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read job for transition: %w", err)
	}
	if !job.Status.CanTransitionTo(next) {
		return nil, &TransitionError{JobID: id, From: job.Status, To: next}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(next), errorMessage, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	job.Status = next
	job.ErrorMessage = errorMessage
	job.UpdatedAt = now
	return job, nil
}

// UpdateProgress persists the job's per-item outcome counters and errors.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress Progress, itemErrors []ItemError) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if itemErrors == nil {
		itemErrors = []ItemError{}
	}
	errorsJSON, err := json.Marshal(itemErrors)
	if err != nil {
		return fmt.Errorf("marshal item errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress_json = ?, item_errors_json = ?, updated_at = ? WHERE id = ?`,
		string(progressJSON), string(errorsJSON), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return requireRow(res, "jobs", "update-progress", id)
}

// UpdateHeartbeat records that the job's worker made observable progress.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return requireRow(res, "jobs", "update-heartbeat", id)
}

// SetManifestPath records where the job's manifest file was written.
func (s *Store) SetManifestPath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET manifest_path = ?, updated_at = ? WHERE id = ?`,
		path, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set manifest path: %w", err)
	}
	return requireRow(res, "jobs", "set-manifest-path", id)
}

// CountByStatus returns how many jobs sit in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func requireRow(res sql.Result, component, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, component, operation, fmt.Sprintf("job %s", id), nil)
	}
	return nil
}

const jobColumns = "id, kind, status, format, session_id, output_dir, manifest_path, snapshot_json, progress_json, item_errors_json, error_message, created_at, updated_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job           Job
		kind          string
		status        string
		snapshotJSON  string
		progressJSON  string
		errorsJSON    string
		createdAt     string
		updatedAt     string
		lastHeartbeat sql.NullString
	)
	err := scanner.Scan(&job.ID, &kind, &status, &job.Format, &job.SessionID, &job.OutputDir,
		&job.ManifestPath, &snapshotJSON, &progressJSON, &errorsJSON, &job.ErrorMessage,
		&createdAt, &updatedAt, &lastHeartbeat)
	if err != nil {
		return nil, err
	}

	job.Kind = Kind(kind)
	job.Status = Status(status)
	if err := json.Unmarshal([]byte(snapshotJSON), &job.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(progressJSON), &job.Progress); err != nil {
		return nil, fmt.Errorf("decode progress for %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &job.ItemErrors); err != nil {
		return nil, fmt.Errorf("decode item errors for %s: %w", job.ID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		job.UpdatedAt = ts
	}
	if lastHeartbeat.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, lastHeartbeat.String); err == nil {
			job.LastHeartbeat = ts
		}
	}
	return &job, nil
}
