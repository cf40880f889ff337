package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const importRunsSchema = `
CREATE TABLE IF NOT EXISTS import_runs (
	id            UUID PRIMARY KEY,
	session_id    TEXT        NOT NULL DEFAULT '',
	kind          TEXT        NOT NULL,
	file_name     TEXT        NOT NULL DEFAULT '',
	params        JSONB       NOT NULL DEFAULT '{}',
	total         INTEGER     NOT NULL,
	success_count INTEGER     NOT NULL,
	failed_count  INTEGER     NOT NULL,
	errors        JSONB       NOT NULL DEFAULT '[]',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
);
ALTER TABLE import_runs ADD COLUMN IF NOT EXISTS session_id TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS import_runs_kind_finished_idx ON import_runs (kind, finished_at DESC);
`

// pgExecutor is the subset of *pgxpool.Pool used by PostgresHistory.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresHistory stores import runs in the import_runs table.
type PostgresHistory struct {
	db pgExecutor
}

// NewPostgresHistory wraps a pool. Call EnsureSchema once at startup.
func NewPostgresHistory(db pgExecutor) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// EnsureSchema creates the import_runs table if it does not exist.
func (h *PostgresHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, importRunsSchema); err != nil {
		return fmt.Errorf("create import_runs: %w", err)
	}
	return nil
}

// Record inserts run. Runs are keyed by their own id, so re-recording the
// same run is a no-op while every upload of a session gets a row.
func (h *PostgresHistory) Record(ctx context.Context, run ImportRun) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		id = uuid.New()
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	errs := run.Errors
	if errs == nil {
		errs = []GlobalRowError{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}

	_, err = h.db.Exec(ctx, `
		INSERT INTO import_runs
			(id, session_id, kind, file_name, params, total, success_count, failed_count, errors, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		pgtype.UUID{Bytes: id, Valid: true},
		run.SessionID,
		run.Kind,
		run.FileName,
		params,
		run.Total,
		run.SuccessCount,
		run.FailedCount,
		errJSON,
		pgtype.Timestamptz{Time: run.StartedAt, Valid: !run.StartedAt.IsZero()},
		pgtype.Timestamptz{Time: run.FinishedAt, Valid: !run.FinishedAt.IsZero()},
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

func (h *PostgresHistory) List(ctx context.Context, kind string, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.db.Query(ctx, `
		SELECT id, session_id, kind, file_name, params, total, success_count, failed_count, errors, started_at, finished_at
		FROM import_runs
		WHERE $1::text = '' OR kind = $1::text
		ORDER BY finished_at DESC
		LIMIT $2`,
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		var (
			run               ImportRun
			id                pgtype.UUID
			params, errs      []byte
			started, finished pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &run.SessionID, &run.Kind, &run.FileName, &params, &run.Total,
			&run.SuccessCount, &run.FailedCount, &errs, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		if id.Valid {
			run.ID = uuid.UUID(id.Bytes).String()
		}
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return nil, fmt.Errorf("decode params of run %s: %w", run.ID, err)
		}
		if err := json.Unmarshal(errs, &run.Errors); err != nil {
			return nil, fmt.Errorf("decode errors of run %s: %w", run.ID, err)
		}
		run.StartedAt = started.Time
		run.FinishedAt = finished.Time
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import runs: %w", err)
	}
	return runs, nil
}

func (h *PostgresHistory) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM import_runs WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge import runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
