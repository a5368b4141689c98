package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lossless/internal/config"
	"lossless/internal/faults"
	"lossless/internal/flags"
)

// StageName identifies the persistence layer in errors and audit records.
const StageName = "persist"

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; an existing database with another version is rejected at open.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// RunRecord describes a pipeline run row for audit readers.
type RunRecord struct {
	ID             string
	Status         string
	StartedAt      time.Time
	FinishedAt     time.Time
	FailureKind    string
	FailureMessage string
}

// StageRecord describes one committed stage of a run.
type StageRecord struct {
	Stage       string
	CompletedAt time.Time
	FlagCount   int
}

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database under the state
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "open", "ensure directories", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "lossless.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "open", "open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, faults.Wrap(faults.ErrPersistence, StageName, "open",
				fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema", "check schema_version table", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema", "read schema version", err)
	}
	if version != schemaVersion {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema",
			fmt.Sprintf("database has version %d, expected %d (delete the database to reset)", version, schemaVersion),
			ErrSchemaMismatch)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema", "begin schema tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema", "create schema", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema", "record schema version", err)
	}
	if err := tx.Commit(); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "init schema", "commit schema", err)
	}
	return nil
}

// CreateRun inserts a new run row in its initial status.
func (s *Store) CreateRun(ctx context.Context, runID, status string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)",
		runID, status, now)
	if err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "create run", runID, err)
	}
	return nil
}

// CommitStage records a completed stage and its flags in one transaction.
// The flags keep their recording order via an explicit position column, so a
// later load reproduces the store's insertion order exactly.
func (s *Store) CommitStage(ctx context.Context, runID, stage, newStatus string, fs []flags.Flag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", stage, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO stage_completions (run_id, stage, completed_at, flag_count) VALUES (?, ?, ?, ?)",
		runID, stage, now, len(fs)); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", stage, err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position)+1, 0) FROM run_flags WHERE run_id = ?", runID,
	).Scan(&next); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", "next flag position", err)
	}

	for i, f := range fs {
		idsJSON, err := json.Marshal(f.IDs())
		if err != nil {
			return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", "encode flag ids", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_flags (run_id, stage, kind, label, ids_json, score, position) VALUES (?, ?, ?, ?, ?, ?, ?)",
			runID, stage, string(f.Kind()), f.Label(), string(idsJSON), f.Score(), next+i); err != nil {
			return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", "insert flag", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE runs SET status = ? WHERE id = ?", newStatus, runID); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", "update run status", err)
	}

	if err := tx.Commit(); err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "commit stage", stage, err)
	}
	return nil
}

// FinishRun closes a run row with its terminal status. For failed runs the
// classified failure is recorded alongside; committed stage flags remain.
func (s *Store) FinishRun(ctx context.Context, runID, status string, failure *faults.Details) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var kind, message any
	if failure != nil {
		kind = failure.Kind
		message = failure.Message
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ?, failure_kind = ?, failure_message = ? WHERE id = ?",
		status, now, kind, message, runID)
	if err != nil {
		return faults.Wrap(faults.ErrPersistence, StageName, "finish run", runID, err)
	}
	return nil
}

// GetRun loads a run row by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, status, started_at, finished_at, failure_kind, failure_message FROM runs WHERE id = ?",
		runID)

	var (
		rec                       RunRecord
		started                   string
		finished, fKind, fMessage sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Status, &started, &finished, &fKind, &fMessage); err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "get run", runID, err)
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	rec.FailureKind = fKind.String
	rec.FailureMessage = fMessage.String
	return &rec, nil
}

// StageRecords returns a run's committed stages in completion order.
func (s *Store) StageRecords(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT stage, completed_at, flag_count FROM stage_completions WHERE run_id = ? ORDER BY completed_at, stage",
		runID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "stage records", runID, err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var (
			rec       StageRecord
			completed string
		)
		if err := rows.Scan(&rec.Stage, &completed, &rec.FlagCount); err != nil {
			return nil, faults.Wrap(faults.ErrPersistence, StageName, "stage records", "scan row", err)
		}
		rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "stage records", runID, err)
	}
	return out, nil
}

// LoadFlags reconstructs a run's committed flags in their recorded order.
func (s *Store) LoadFlags(ctx context.Context, runID string) ([]flags.Flag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, label, ids_json, score FROM run_flags WHERE run_id = ? ORDER BY position",
		runID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "load flags", runID, err)
	}
	defer rows.Close()

	var out []flags.Flag
	for rows.Next() {
		var (
			kind, label, idsJSON string
			score                float64
		)
		if err := rows.Scan(&kind, &label, &idsJSON, &score); err != nil {
			return nil, faults.Wrap(faults.ErrPersistence, StageName, "load flags", "scan row", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(strings.TrimSpace(idsJSON)), &ids); err != nil {
			return nil, faults.Wrap(faults.ErrPersistence, StageName, "load flags", "decode flag ids", err)
		}
		out = append(out, flags.New(flags.Kind(kind), label, ids, score))
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, StageName, "load flags", runID, err)
	}
	return out, nil
}
