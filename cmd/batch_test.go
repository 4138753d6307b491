package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/evaluation"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/report"
)

func TestRequestsFromSheet(t *testing.T) {
	rows := [][]string{
		{" Run_Type ", "deal_id", "org_id", "payload", "force_rerun"},
		{"triage", "deal-1", "org-1", `{"scores":{}}`, ""},
		{"", "", "", "", ""},
		{"deal_score", "deal-2", "org-1", `{"scores":{"financial":80}}`, "true"},
	}

	reqs, err := requestsFromSheet(rows)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, model.RunTypeTriage, reqs[0].RunType)
	assert.Equal(t, "deal-1", reqs[0].DealID)
	assert.JSONEq(t, `{"scores":{}}`, string(reqs[0].Payload))
	assert.False(t, reqs[0].ForceRerun)

	assert.Equal(t, model.RunTypeDealScore, reqs[1].RunType)
	assert.True(t, reqs[1].ForceRerun)
}

func TestRequestsFromSheet_ShortRow(t *testing.T) {
	rows := [][]string{
		{"run_type", "deal_id", "org_id", "payload", "force_rerun"},
		{"triage", "deal-1", "org-1", `{}`},
	}
	reqs, err := requestsFromSheet(rows)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].ForceRerun)
}

func TestRequestsFromSheet_Errors(t *testing.T) {
	_, err := requestsFromSheet([][]string{{"run_type", "deal_id", "org_id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing the "payload" column`)

	_, err = requestsFromSheet([][]string{
		{"run_type", "deal_id", "org_id", "payload", "force_rerun"},
		{"triage", "d", "o", "{}", "maybe"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2: force_rerun")

	reqs, err := requestsFromSheet(nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestLoadBatchRequests_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.json")
	body := `[{"run_type":"triage","deal_id":"d1","org_id":"o1","payload":{"scores":{}}},` +
		`{"run_type":"screening","deal_id":"d2","org_id":"o1","payload":{"inputs":{}},"force_rerun":true}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	reqs, err := loadBatchRequests(path, "")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, model.RunTypeScreening, reqs[1].RunType)
	assert.True(t, reqs[1].ForceRerun)
}

func TestLoadBatchRequests_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("requests")
	require.NoError(t, err)
	for _, values := range [][]string{
		{"run_type", "deal_id", "org_id", "payload"},
		{"triage", "deal-1", "org-1", triageBodyJSON},
	} {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(path))

	reqs, err := loadBatchRequests(path, "requests")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "deal-1", reqs[0].DealID)
	assert.JSONEq(t, triageBodyJSON, string(reqs[0].Payload))
}

func TestLoadBatchRequests_Missing(t *testing.T) {
	_, err := loadBatchRequests(filepath.Join(t.TempDir(), "nope.json"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read batch file")
}

func TestBatchRows(t *testing.T) {
	items := []evaluation.BatchItem{
		{
			Index:   0,
			Request: evaluation.Request{RunType: model.RunTypeDealScore, DealID: "d1", OrgID: "o1"},
			Result: &evaluation.Result{
				Run: &model.Run{
					ID: "run-1", RunType: model.RunTypeDealScore, DealID: "d1", OrgID: "o1",
					Status: model.RunStatusComplete,
					Result: json.RawMessage(`{"total_score":81.5,"tier":"B"}`),
				},
				Reused: true,
			},
		},
		{
			Index:   1,
			Request: evaluation.Request{RunType: model.RunTypeTriage, DealID: "d2", OrgID: "o1"},
			Error:   "evaluation: invalid request",
		},
	}

	rows := batchRows(items)
	require.Len(t, rows, 2)

	assert.Equal(t, "run-1", rows[0].RunID)
	assert.True(t, rows[0].Reused)
	require.NotNil(t, rows[0].Score)
	assert.InDelta(t, 81.5, *rows[0].Score, 1e-9)
	assert.Equal(t, "B", rows[0].Tier)

	assert.Empty(t, rows[1].RunID)
	assert.Equal(t, model.RunStatusFailed, rows[1].Status)
	assert.Equal(t, "d2", rows[1].DealID)
	assert.Equal(t, "evaluation: invalid request", rows[1].Error)
}

func TestWriteBatch_Formats(t *testing.T) {
	items := []evaluation.BatchItem{{
		Request: evaluation.Request{RunType: model.RunTypeTriage, DealID: "d1", OrgID: "o1"},
		Error:   "boom",
	}}

	var buf bytes.Buffer
	require.NoError(t, writeBatch(&buf, report.FormatCSV, items))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, report.Header, records[0])

	buf.Reset()
	require.NoError(t, writeBatch(&buf, report.FormatJSON, items))
	var decoded []evaluation.BatchItem
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "boom", decoded[0].Error)

	assert.Error(t, writeBatch(&buf, "yaml", items))
}

func TestBatchCommand(t *testing.T) {
	useTempWorkspace(t)
	dir, err := os.Getwd()
	require.NoError(t, err)

	input := filepath.Join(dir, "requests.json")
	body := `[{"run_type":"triage","deal_id":"d1","org_id":"o1","payload":` + triageBodyJSON + `},` +
		`{"run_type":"triage","deal_id":"d2","org_id":"o1","payload":"not an object"},` +
		`{"run_type":"triage","org_id":"o1","payload":{}}]`
	require.NoError(t, os.WriteFile(input, []byte(body), 0o644))
	workbook := filepath.Join(dir, "out.xlsx")

	out, err := runCommand(t, "", "batch", "--input", input, "--format", "csv", "--out", workbook)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "complete", records[1][4])
	assert.Equal(t, "failed", records[2][4])
	assert.Equal(t, "failed", records[3][4])

	sheetRows, err := report.ReadSheet(workbook, "runs")
	require.NoError(t, err)
	assert.Len(t, sheetRows, 4)
}
