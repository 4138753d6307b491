package evaluation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

func TestEvaluateBatch(t *testing.T) {
	svc, _ := newSQLiteService(t, DefaultOptions())
	ctx := context.Background()

	reqs := []Request{
		triageRequest("deal-1", triageJSON),
		{RunType: "unknown", DealID: "deal-2", OrgID: "org-1", Payload: json.RawMessage(`{}`)},
		{RunType: model.RunTypeDealScore, DealID: "deal-3", OrgID: "org-1", Payload: json.RawMessage(`{"scores":{"financial":90}}`)},
	}

	items, summary, err := svc.EvaluateBatch(ctx, reqs, 2)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, BatchSummary{Computed: 2, Failed: 1}, summary)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}
	assert.NotNil(t, items[0].Result)
	assert.Contains(t, items[1].Error, "unknown run type")
	assert.Nil(t, items[1].Result)

	_, summary, err = svc.EvaluateBatch(ctx, reqs, 0)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Reused: 2, Failed: 1}, summary)
}

func TestEvaluateBatch_Empty(t *testing.T) {
	svc, _ := newSQLiteService(t, DefaultOptions())
	items, summary, err := svc.EvaluateBatch(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, summary)
}

func TestEvaluateBatch_CancelledContext(t *testing.T) {
	svc, _ := newSQLiteService(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.EvaluateBatch(ctx, []Request{triageRequest("deal-1", triageJSON)}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
