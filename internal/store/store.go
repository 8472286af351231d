package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/goal"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DefaultRecentLimit is used when RecentRuns is asked for a non-positive number of rows.
const DefaultRecentLimit = 20

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS goal_runs (
            id                 TEXT PRIMARY KEY,
            goal_id            TEXT NOT NULL,
            command            TEXT NOT NULL,
            goal_type          TEXT NOT NULL,
            domain             TEXT NOT NULL,
            status             TEXT NOT NULL,
            subgoals_total     INTEGER NOT NULL,
            subgoals_completed INTEGER NOT NULL,
            total_actions      INTEGER NOT NULL,
            errors             INTEGER NOT NULL,
            retries            INTEGER NOT NULL,
            duration_ms        BIGINT NOT NULL,
            quality_score      INTEGER NOT NULL,
            created_at         TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS goal_runs_created_at_idx ON goal_runs (created_at DESC);
    `

const recentRunsSQL = `
        SELECT id, goal_id, command, goal_type, domain, status, subgoals_total, subgoals_completed,
               total_actions, errors, retries, duration_ms, quality_score, created_at
        FROM goal_runs
        ORDER BY created_at DESC
        LIMIT $1;
    `

var runColumns = []string{
	"id", "goal_id", "command", "goal_type", "domain", "status", "subgoals_total", "subgoals_completed",
	"total_actions", "errors", "retries", "duration_ms", "quality_score", "created_at",
}

// Run is one persisted goal execution.
type Run struct {
	ID                string              `json:"id"`
	GoalID            string              `json:"goal_id"`
	Command           string              `json:"command"`
	GoalType          goal.Type           `json:"goal_type"`
	Domain            string              `json:"domain"`
	Status            engine.OutputStatus `json:"status"`
	SubgoalsTotal     int                 `json:"subgoals_total"`
	SubgoalsCompleted int                 `json:"subgoals_completed"`
	TotalActions      int                 `json:"total_actions"`
	Errors            int                 `json:"errors"`
	Retries           int                 `json:"retries"`
	DurationMs        int64               `json:"duration_ms"`
	QualityScore      int                 `json:"quality_score"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Store persists goal runs in PostgreSQL. It satisfies engine.Recorder.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the goal_runs table and its index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create goal_runs schema: %w", err)
	}
	return nil
}

// RecordRun persists a single run.
func (s *Store) RecordRun(ctx context.Context, run engine.RunRecord) error {
	return s.RecordRuns(ctx, []engine.RunRecord{run})
}

// RecordRuns persists runs in one transaction.
func (s *Store) RecordRuns(ctx context.Context, runs []engine.RunRecord) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]any, len(runs))
	for i, r := range runs {
		rows[i] = toRow(r)
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"goal_runs"}, runColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy goal runs: %w", err)
	}
	if int(copyCount) != len(runs) {
		return fmt.Errorf("mismatch in copied goal runs count: expected %d, got %d", len(runs), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Goal runs persisted", zap.Int("count", len(runs)))
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var goalType, status string
		err := rows.Scan(
			&r.ID, &r.GoalID, &r.Command, &goalType, &r.Domain, &status,
			&r.SubgoalsTotal, &r.SubgoalsCompleted, &r.TotalActions, &r.Errors, &r.Retries,
			&r.DurationMs, &r.QualityScore, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal run row: %w", err)
		}
		r.GoalType = goal.Type(goalType)
		r.Status = engine.OutputStatus(status)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// toRow orders r's fields as runColumns. Ids are ULIDs so they sort by creation time.
func toRow(r engine.RunRecord) []any {
	created := r.CreatedAt.UTC()
	if r.CreatedAt.IsZero() {
		created = time.Now().UTC()
	}
	id := ulid.MustNew(ulid.Timestamp(created), ulid.DefaultEntropy())
	return []any{
		id.String(), r.GoalID, r.Command, string(r.GoalType), r.Domain, string(r.Status),
		r.SubgoalsTotal, r.SubgoalsCompleted, r.TotalActions, r.Errors, r.Retries,
		r.Duration.Milliseconds(), r.QualityScore, created,
	}
}
