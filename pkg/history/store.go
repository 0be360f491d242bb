// Package history archives finished query runs to PostgreSQL. The engine
// itself stays stateless; history is an optional consumer of finished runs.
package history

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/queue"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrRunNotFound is returned when no archived run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run is one archived query run.
type Run struct {
	ID          string              `json:"id"`
	Query       string              `json:"query"`
	QueryType   string              `json:"query_type"`
	Status      string              `json:"status"`
	Error       string              `json:"error,omitempty"`
	SubmittedAt time.Time           `json:"submitted_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	State       *model.FinanceState `json:"state,omitempty"`
}

// Store persists runs over a pgx-backed database/sql connection. Migrations
// are embedded and applied on Open.
type Store struct {
	db     *stdsql.DB
	logger *slog.Logger
}

// Open connects to the database, verifies connectivity, and applies pending
// migrations.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("History store ready")
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ArchiveRun stores a finished job and its trace lines. Implements
// queue.Archiver.
func (s *Store) ArchiveRun(ctx context.Context, job queue.Job) error {
	var (
		stateJSON []byte
		queryType string
		traces    []string
		err       error
	)
	if job.State != nil {
		stateJSON, err = json.Marshal(job.State)
		if err != nil {
			return fmt.Errorf("serializing run state: %w", err)
		}
		queryType = string(job.State.QueryType)
		traces = job.State.DebugMessages
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, query, query_type, status, error, submitted_at, started_at, finished_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			state = EXCLUDED.state`,
		job.ID, job.Query, queryType, string(job.Status), job.Error,
		job.SubmittedAt, nullableTime(job.StartedAt), nullableTime(job.FinishedAt), nullableJSON(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", job.ID, err)
	}

	for i, line := range traces {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_traces (run_id, seq, message) VALUES ($1, $2, $3)
			ON CONFLICT (run_id, seq) DO NOTHING`,
			job.ID, i, line,
		); err != nil {
			return fmt.Errorf("inserting trace line %d for run %s: %w", i, job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive for run %s: %w", job.ID, err)
	}
	s.logger.Debug("Archived run", "run_id", job.ID, "status", job.Status, "trace_lines", len(traces))
	return nil
}

// GetRun fetches one archived run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, query_type, status, error, submitted_at, started_at, finished_at, state
		FROM runs WHERE id = $1`, id)

	var (
		run       Run
		startedAt stdsql.NullTime
		finished  stdsql.NullTime
		stateJSON []byte
	)
	err := row.Scan(&run.ID, &run.Query, &run.QueryType, &run.Status, &run.Error,
		&run.SubmittedAt, &startedAt, &finished, &stateJSON)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	if len(stateJSON) > 0 {
		var state model.FinanceState
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return nil, fmt.Errorf("deserializing state for run %s: %w", id, err)
		}
		run.State = &state
	}
	return &run, nil
}

// ListRecentRuns returns the most recently submitted runs, newest first,
// without their full states.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, query_type, status, error, submitted_at, started_at, finished_at
		FROM runs ORDER BY submitted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			startedAt stdsql.NullTime
			finished  stdsql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Query, &run.QueryType, &run.Status, &run.Error,
			&run.SubmittedAt, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if startedAt.Valid {
			run.StartedAt = &startedAt.Time
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetTraces returns the archived trace lines of a run in order.
func (s *Store) GetTraces(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message FROM run_traces WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying traces for run %s: %w", runID, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scanning trace line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// runMigrations applies all pending embedded migrations. The migration
// source driver is closed separately: m.Close() would also close the shared
// *sql.DB handed to postgres.WithInstance.
func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "finsight", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
