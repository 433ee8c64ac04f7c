// Package history keeps a host-local SQLite ledger of finished jobs.
// Recording is best effort: workers log and continue when the ledger is
// unavailable, so it never blocks processing.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sshoecraft/mmprocess/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; old databases report a mismatch instead of being migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different
// schema version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

// Record is one finished job.
type Record struct {
	ID          int64
	Name        string
	Profile     string
	Outcome     string
	FailedStep  string
	Duration    float64 // seconds of media
	InputBytes  int64
	OutputBytes int64
	Passes      int
	WallTime    time.Duration
	Host        string
	FinishedAt  time.Time
}

// Store manages the finished-job ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	dbPath := cfg.History.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
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

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start fresh)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Add appends one finished job to the ledger. A zero FinishedAt is
// stamped with the current time; an empty Host is filled from the system
// hostname.
func (s *Store) Add(ctx context.Context, rec Record) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.Host == "" {
		if host, err := os.Hostname(); err == nil {
			rec.Host = host
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO finished_jobs (
            name, profile, outcome, failed_step, duration_seconds,
            input_bytes, output_bytes, passes, wall_seconds, host, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name,
		rec.Profile,
		rec.Outcome,
		nullableString(rec.FailedStep),
		rec.Duration,
		rec.InputBytes,
		rec.OutputBytes,
		rec.Passes,
		rec.WallTime.Seconds(),
		rec.Host,
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert finished job: %w", err)
	}
	return nil
}

// Recent returns the most recently finished jobs, newest first. A limit
// of zero or less returns nothing.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, profile, outcome, failed_step, duration_seconds,
            input_bytes, output_bytes, passes, wall_seconds, host, finished_at
        FROM finished_jobs
        ORDER BY finished_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query finished jobs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			failedStep sql.NullString
			wall       float64
			finishedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Profile, &rec.Outcome, &failedStep,
			&rec.Duration, &rec.InputBytes, &rec.OutputBytes, &rec.Passes, &wall,
			&rec.Host, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan finished job: %w", err)
		}
		rec.FailedStep = failedStep.String
		rec.WallTime = time.Duration(wall * float64(time.Second))
		if parsed, parseErr := time.Parse(time.RFC3339Nano, finishedAt); parseErr == nil {
			rec.FinishedAt = parsed
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finished jobs: %w", err)
	}
	return records, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
