// Package store persists evaluation runs so repeated requests can be
// answered from a prior result.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs. Zero values match everything.
type RunFilter struct {
	RunType model.RunType   `json:"run_type,omitempty"`
	DealID  string          `json:"deal_id,omitempty"`
	OrgID   string          `json:"org_id,omitempty"`
	Status  model.RunStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for evaluation runs.
type Store interface {
	CreateRun(ctx context.Context, run model.NewRun) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result json.RawMessage) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// LatestCompletedRun returns the most recently updated complete run for
	// the (run type, deal, org) triple, or nil when there is none.
	LatestCompletedRun(ctx context.Context, runType model.RunType, dealID, orgID string) (*model.Run, error)

	// ImportRuns upserts runs by id and returns the number written.
	ImportRuns(ctx context.Context, runs []model.Run) (int64, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
