package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in force and
	// serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	run_type   TEXT NOT NULL,
	deal_id    TEXT NOT NULL,
	org_id     TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	input      TEXT,
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(run_type, deal_id, org_id, status);
CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at);
`

const sqliteRunColumns = `id, run_type, deal_id, org_id, input_hash, status, input, result, error, created_at, updated_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, nr model.NewRun) (*model.Run, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_type, deal_id, org_id, input_hash, status, input, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.RunType), run.DealID, run.OrgID, run.InputHash,
		string(run.Status), nullableJSON(run.Input), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, error = NULL, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), nullableJSON(result), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return run, err
}

func (s *SQLiteStore) LatestCompletedRun(ctx context.Context, runType model.RunType, dealID, orgID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs
		 WHERE run_type = ? AND deal_id = ? AND org_id = ? AND status = ?
		 ORDER BY updated_at DESC, rowid DESC LIMIT 1`,
		string(runType), dealID, orgID, string(model.RunStatusComplete),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if filter.RunType != "" {
		add("run_type = ?", string(filter.RunType))
	}
	if filter.DealID != "" {
		add("deal_id = ?", filter.DealID)
	}
	if filter.OrgID != "" {
		add("org_id = ?", filter.OrgID)
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}

	query := `SELECT ` + sqliteRunColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ImportRuns(ctx context.Context, runs []model.Run) (int64, error) {
	if len(runs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO runs (`+sqliteRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			run_type = excluded.run_type, deal_id = excluded.deal_id, org_id = excluded.org_id,
			input_hash = excluded.input_hash, status = excluded.status, input = excluded.input,
			result = excluded.result, error = excluded.error, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import prepare")
	}
	defer stmt.Close()

	var n int64
	for _, r := range runs {
		args := runArgs(r)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import run %s", r.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import commit")
	}
	return n, nil
}

// runArgs returns the column values of r in sqliteRunColumns order, filling
// in an id and timestamps when the record lacks them.
func runArgs(r model.Run) []any {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.RunStatusComplete
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return []any{
		r.ID, string(r.RunType), r.DealID, r.OrgID, r.InputHash, string(r.Status),
		nullableJSON(r.Input), nullableJSON(r.Result), nullableText(r.Error),
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	}
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var input, result, errText sql.NullString

	err := row.Scan(&r.ID, &r.RunType, &r.DealID, &r.OrgID, &r.InputHash, &r.Status,
		&input, &result, &errText, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if input.Valid {
		r.Input = json.RawMessage(input.String)
	}
	if result.Valid {
		r.Result = json.RawMessage(result.String)
	}
	r.Error = errText.String
	return &r, nil
}
