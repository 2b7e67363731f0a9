package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bbque-tools/dse/internal/domain"
)

// DB is the subset of *sql.DB used by PostgresStore.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	schemaQuery = `CREATE TABLE IF NOT EXISTS dse_runs (
		record_id      UUID PRIMARY KEY,
		run_id         UUID NOT NULL,
		sequence       INTEGER NOT NULL,
		label          TEXT NOT NULL,
		point          JSONB NOT NULL,
		status         TEXT NOT NULL,
		error          TEXT,
		teardown_error TEXT,
		log_ref        TEXT,
		started_at     TIMESTAMPTZ NOT NULL,
		finished_at    TIMESTAMPTZ NOT NULL,
		UNIQUE (run_id, sequence)
	);
	CREATE TABLE IF NOT EXISTS dse_explorations (
		run_id      UUID PRIMARY KEY,
		mode        TEXT NOT NULL,
		total       BIGINT NOT NULL,
		executed    BIGINT NOT NULL,
		skipped     BIGINT NOT NULL,
		failed      BIGINT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`

	insertRunQuery = `INSERT INTO dse_runs (
		record_id,
		run_id,
		sequence,
		label,
		point,
		status,
		error,
		teardown_error,
		log_ref,
		started_at,
		finished_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (run_id, sequence) DO NOTHING`

	upsertExplorationQuery = `INSERT INTO dse_explorations (
		run_id, mode, total, executed, skipped, failed, started_at, finished_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (run_id) DO UPDATE SET
		executed = EXCLUDED.executed,
		skipped = EXCLUDED.skipped,
		failed = EXCLUDED.failed,
		finished_at = EXCLUDED.finished_at`

)

// PostgresStore mirrors the run log into Postgres. Inserts are idempotent
// on (run_id, sequence).
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		return nil
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, schemaQuery); err != nil {
		return fmt.Errorf("ensure run schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, record domain.RunRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if strings.TrimSpace(record.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	if record.Sequence < 1 {
		return fmt.Errorf("sequence must be >= 1")
	}
	if record.Status == "" {
		return fmt.Errorf("status is required")
	}
	id := record.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	point, err := json.Marshal(record.Point)
	if err != nil {
		return fmt.Errorf("encode point: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		insertRunQuery,
		id,
		record.RunID,
		record.Sequence,
		record.Label,
		point,
		string(record.Status),
		nullIfEmpty(record.Error),
		nullIfEmpty(record.TeardownError),
		nullIfEmpty(record.LogRef),
		record.StartedAt.UTC(),
		record.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close(ctx context.Context, summary domain.Summary) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		upsertExplorationQuery,
		summary.RunID,
		summary.Mode,
		int64(summary.Progress.Total),
		int64(summary.Progress.Executed),
		int64(summary.Progress.Skipped),
		int64(summary.Progress.Failed),
		summary.StartedAt.UTC(),
		summary.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert exploration: %w", err)
	}
	return nil
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
