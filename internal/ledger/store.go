package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"curator/internal/config"
	"curator/internal/services"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LedgerDBPath()
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

// Register inserts a sample discovered in the media store. Existing samples
// are left untouched; the returned bool reports whether a new row was
// created. New samples start at version 1 with an audit entry.
func (s *Store) Register(ctx context.Context, writer, id, mediaRef string, fields map[string]any) (*Sample, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, services.Wrap(services.ErrValidation, "ledger", "register", "sample id must not be empty", nil)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, false, fmt.Errorf("marshal fields: %w", err)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO samples (id, media_ref, tags_json, fields_json, version, last_modified_by, last_modified_at)
         VALUES (?, ?, '[]', ?, 1, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		id, mediaRef, string(fieldsJSON), writer, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert sample: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if inserted > 0 {
		if err := appendAudit(ctx, tx, id, 1, writer, now); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit register: %w", err)
	}

	sample, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sample, inserted > 0, nil
}

// Get fetches a sample by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Sample, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM samples WHERE id = ?`, id)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "ledger", "get", fmt.Sprintf("sample %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get sample: %w", err)
	}
	return sample, nil
}

// List returns all samples ordered by identifier.
func (s *Store) List(ctx context.Context) ([]*Sample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sampleColumns+` FROM samples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// Write applies a delta if expectedVersion matches the stored version and
// bumps the version. On mismatch it fails with ConflictError; no partial
// state is persisted. Merge policy lives in the coordinator, not here.
func (s *Store) Write(ctx context.Context, writer, id string, expectedVersion int64, delta Delta) (*Sample, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin write tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM samples WHERE id = ?`, id)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "ledger", "write", fmt.Sprintf("sample %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read sample for write: %w", err)
	}
	if sample.Version != expectedVersion {
		return nil, &ConflictError{SampleID: id, Current: sample.Version, Attempted: expectedVersion}
	}

	tags := applyTagDelta(sample.Tags, delta.AddTags, delta.RemoveTags)
	fields := sample.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	for key, value := range delta.SetFields {
		if value == nil {
			delete(fields, key)
			continue
		}
		fields[key] = value
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}

	now := time.Now().UTC()
	newVersion := expectedVersion + 1
	res, err := tx.ExecContext(ctx,
		`UPDATE samples
         SET tags_json = ?, fields_json = ?, version = ?, last_modified_by = ?, last_modified_at = ?
         WHERE id = ? AND version = ?`,
		string(tagsJSON), string(fieldsJSON), newVersion, writer, now.Format(time.RFC3339Nano),
		id, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race between read and update.
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &ConflictError{SampleID: id, Current: current.Version, Attempted: expectedVersion}
	}

	if err := appendAudit(ctx, tx, id, newVersion, writer, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit write: %w", err)
	}

	sample.Tags = tags
	sample.Fields = fields
	sample.Version = newVersion
	sample.LastModifiedBy = writer
	sample.LastModifiedAt = now
	return sample, nil
}

// RecordConflict appends a conflict record for later audit.
func (s *Store) RecordConflict(ctx context.Context, rec ConflictRecord) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conflict_records (sample_id, base_version, incoming_version, field_key, resolution, writer, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SampleID, rec.BaseVersion, rec.IncomingVersion, rec.FieldKey, string(rec.Resolution), rec.Writer,
		recordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record conflict: %w", err)
	}
	return nil
}

// ConflictsFor returns conflict records for a sample in recording order.
func (s *Store) ConflictsFor(ctx context.Context, sampleID string) ([]ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sample_id, base_version, incoming_version, field_key, resolution, writer, recorded_at
         FROM conflict_records WHERE sample_id = ? ORDER BY id`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var records []ConflictRecord
	for rows.Next() {
		var (
			rec        ConflictRecord
			resolution string
			recordedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SampleID, &rec.BaseVersion, &rec.IncomingVersion, &rec.FieldKey, &resolution, &rec.Writer, &recordedAt); err != nil {
			return nil, err
		}
		rec.Resolution = Resolution(resolution)
		if ts, err := parseTimeString(recordedAt); err == nil {
			rec.RecordedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AuditFor returns the accepted-write history for a sample in version order.
func (s *Store) AuditFor(ctx context.Context, sampleID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sample_id, version, writer, recorded_at FROM audit_log WHERE sample_id = ? ORDER BY version`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			recordedAt string
		)
		if err := rows.Scan(&entry.ID, &entry.SampleID, &entry.Version, &entry.Writer, &recordedAt); err != nil {
			return nil, err
		}
		if ts, err := parseTimeString(recordedAt); err == nil {
			entry.RecordedAt = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the total number of samples.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM samples`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

func appendAudit(ctx context.Context, tx *sql.Tx, sampleID string, version int64, writer string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (sample_id, version, writer, recorded_at) VALUES (?, ?, ?, ?)`,
		sampleID, version, writer, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func applyTagDelta(current, add, remove []string) []string {
	set := make(map[string]struct{}, len(current)+len(add))
	for _, tag := range current {
		set[tag] = struct{}{}
	}
	for _, tag := range add {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		set[tag] = struct{}{}
	}
	for _, tag := range remove {
		delete(set, strings.TrimSpace(tag))
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

const sampleColumns = "id, media_ref, tags_json, fields_json, version, last_modified_by, last_modified_at"

func scanSample(scanner interface{ Scan(dest ...any) error }) (*Sample, error) {
	var (
		id         string
		mediaRef   string
		tagsJSON   string
		fieldsJSON string
		version    int64
		modifiedBy sql.NullString
		modifiedAt sql.NullString
	)
	if err := scanner.Scan(&id, &mediaRef, &tagsJSON, &fieldsJSON, &version, &modifiedBy, &modifiedAt); err != nil {
		return nil, err
	}

	sample := &Sample{
		ID:             id,
		MediaRef:       mediaRef,
		Version:        version,
		LastModifiedBy: modifiedBy.String,
	}
	if err := json.Unmarshal([]byte(tagsJSON), &sample.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &sample.Fields); err != nil {
		return nil, fmt.Errorf("decode fields for %s: %w", id, err)
	}
	if modifiedAt.Valid {
		if ts, err := parseTimeString(modifiedAt.String); err == nil {
			sample.LastModifiedAt = ts
		}
	}
	return sample, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
