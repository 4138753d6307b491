package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/db"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// JSONB and nullable columns are read back as text so scans never see NULL.
const pgRunColumns = `id, run_type, deal_id, org_id, input_hash, status, ` +
	`COALESCE(input::text, ''), COALESCE(result::text, ''), COALESCE(error, ''), created_at, updated_at`

const (
	sqlInsertRun   = `INSERT INTO runs (id, run_type, deal_id, org_id, input_hash, status, input, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	sqlCompleteRun = `UPDATE runs SET status = $1, result = $2, error = NULL, updated_at = $3 WHERE id = $4`
	sqlFailRun     = `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`
	sqlGetRun      = `SELECT ` + pgRunColumns + ` FROM runs WHERE id = $1`
	sqlLatestRun   = `SELECT ` + pgRunColumns + ` FROM runs WHERE run_type = $1 AND deal_id = $2 AND org_id = $3 AND status = $4 ORDER BY updated_at DESC, created_at DESC LIMIT 1`
)

// importColumns matches the value order produced by runArgs.
var importColumns = []string{
	"id", "run_type", "deal_id", "org_id", "input_hash", "status",
	"input", "result", "error", "created_at", "updated_at",
}

// preparedStatements are prepared on each new connection; every evaluation
// touches at least two of them.
var preparedStatements = map[string]string{
	"insert_run":        sqlInsertRun,
	"complete_run":      sqlCompleteRun,
	"fail_run":          sqlFailRun,
	"get_run":           sqlGetRun,
	"latest_run_by_key": sqlLatestRun,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_type   TEXT NOT NULL,
	deal_id    TEXT NOT NULL,
	org_id     TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	input      JSONB,
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(run_type, deal_id, org_id, status, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_input_hash ON runs(input_hash);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, nr model.NewRun) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		RunType:   nr.RunType,
		DealID:    nr.DealID,
		OrgID:     nr.OrgID,
		InputHash: nr.InputHash,
		Status:    model.RunStatusRunning,
		Input:     nr.Input,
		CreatedAt: time.Now().UTC(),
	}
	run.UpdatedAt = run.CreatedAt

	_, err := s.pool.Exec(ctx, sqlInsertRun,
		run.ID, string(run.RunType), run.DealID, run.OrgID, run.InputHash,
		string(run.Status), nullableJSON(run.Input), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, sqlCompleteRun,
		string(model.RunStatusComplete), nullableJSON(result), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx, sqlFailRun,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	run, err := scanPgRun(s.pool.QueryRow(ctx, sqlGetRun, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) LatestCompletedRun(ctx context.Context, runType model.RunType, dealID, orgID string) (*model.Run, error) {
	run, err := scanPgRun(s.pool.QueryRow(ctx, sqlLatestRun,
		string(runType), dealID, orgID, string(model.RunStatusComplete)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest completed run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	add := func(col string, v any) {
		query += fmt.Sprintf(` AND %s = $%d`, col, argIdx)
		args = append(args, v)
		argIdx++
	}
	if filter.RunType != "" {
		add("run_type", string(filter.RunType))
	}
	if filter.DealID != "" {
		add("deal_id", filter.DealID)
	}
	if filter.OrgID != "" {
		add("org_id", filter.OrgID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC, created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// ImportRuns stages runs through COPY and upserts them by id.
func (s *PostgresStore) ImportRuns(ctx context.Context, runs []model.Run) (int64, error) {
	rows := make([][]any, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, runArgs(r))
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "runs",
		Columns:      importColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import runs")
	}
	return n, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var runType, status, input, result string
	if err := row.Scan(&r.ID, &runType, &r.DealID, &r.OrgID, &r.InputHash, &status,
		&input, &result, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.RunType = model.RunType(runType)
	r.Status = model.RunStatus(status)
	if input != "" {
		r.Input = json.RawMessage(input)
	}
	if result != "" {
		r.Result = json.RawMessage(result)
	}
	return &r, nil
}
