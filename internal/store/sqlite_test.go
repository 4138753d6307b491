package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTriageRun(dealID string) model.NewRun {
	return model.NewRun{
		RunType:   model.RunTypeTriage,
		DealID:    dealID,
		OrgID:     "org-1",
		InputHash: "hash-" + dealID,
		Input:     json.RawMessage(`{"parcel_count":1}`),
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, newTriageRun("deal-1"))
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.JSONEq(t, `{"parcel_count":1}`, string(got.Input))
	assert.Nil(t, got.Result)

	require.NoError(t, st.CompleteRun(ctx, run.ID, json.RawMessage(`{"decision":"ADVANCE"}`)))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.JSONEq(t, `{"decision":"ADVANCE"}`, string(got.Result))
	assert.Equal(t, "hash-deal-1", got.InputHash)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, newTriageRun("deal-1"))
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, "invalid playbook"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "invalid playbook", got.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, st.CompleteRun(ctx, "missing", nil), ErrNotFound)
	assert.ErrorIs(t, st.FailRun(ctx, "missing", "x"), ErrNotFound)
}

func TestSQLite_LatestCompletedRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	none, err := st.LatestCompletedRun(ctx, model.RunTypeTriage, "deal-1", "org-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := st.CreateRun(ctx, newTriageRun("deal-1"))
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, first.ID, json.RawMessage(`{"n":1}`)))

	second, err := st.CreateRun(ctx, newTriageRun("deal-1"))
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, second.ID, json.RawMessage(`{"n":2}`)))

	// Running and failed runs never count.
	_, err = st.CreateRun(ctx, newTriageRun("deal-1"))
	require.NoError(t, err)

	latest, err := st.LatestCompletedRun(ctx, model.RunTypeTriage, "deal-1", "org-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	other, err := st.LatestCompletedRun(ctx, model.RunTypeScreening, "deal-1", "org-1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, deal := range []string{"deal-1", "deal-1", "deal-2"} {
		_, err := st.CreateRun(ctx, newTriageRun(deal))
		require.NoError(t, err)
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "deal-2", all[0].DealID)

	filtered, err := st.ListRuns(ctx, RunFilter{DealID: "deal-1"})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "deal-1", page[0].DealID)

	none, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_ImportRuns_Upserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{ID: "r1", RunType: model.RunTypeDealScore, DealID: "d1", OrgID: "o1", InputHash: "h1",
			Status: model.RunStatusComplete, Result: json.RawMessage(`{"tier":"B"}`), CreatedAt: ts},
		{RunType: model.RunTypeScreening, DealID: "d2", OrgID: "o1", InputHash: "h2"},
	}
	n, err := st.ImportRuns(ctx, runs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"B"}`, string(got.Result))
	assert.True(t, ts.Equal(got.UpdatedAt))

	runs[0].Result = json.RawMessage(`{"tier":"A"}`)
	n, err = st.ImportRuns(ctx, runs[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = st.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"A"}`, string(got.Result))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_ImportRuns_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.ImportRuns(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
