// Package report flattens evaluation runs into rows and writes them as a
// console table, CSV or an XLSX workbook.
package report

import (
	"encoding/json"
	"time"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
)

// Row is the one-line summary of a run.
type Row struct {
	RunID     string
	RunType   model.RunType
	DealID    string
	OrgID     string
	Status    model.RunStatus
	Reused    bool
	Score     *float64
	Tier      string
	Decision  string
	Lane      string
	Error     string
	UpdatedAt time.Time
}

// Header is the column order shared by every writer.
var Header = []string{
	"run_id", "run_type", "deal_id", "org_id", "status", "reused",
	"score", "tier", "decision", "lane", "error", "updated_at",
}

// headline picks the summary fields out of any run type's result.
type headline struct {
	Triage *struct {
		Decision     string  `json:"decision"`
		NumericScore float64 `json:"numeric_score"`
		Tier         string  `json:"tier"`
	} `json:"triage"`
	Routing *struct {
		SLATier string `json:"sla_tier"`
	} `json:"routing"`
	Scores *struct {
		OverallScore     *float64 `json:"overall_score"`
		HardFilterFailed bool     `json:"hard_filter_failed"`
		IsProvisional    bool     `json:"is_provisional"`
	} `json:"scores"`
	TotalScore *float64 `json:"total_score"`
	Tier       string   `json:"tier"`
}

// FromRun summarizes a stored run. Results that cannot be decoded leave the
// score columns empty.
func FromRun(run model.Run, reused bool) Row {
	row := Row{
		RunID:     run.ID,
		RunType:   run.RunType,
		DealID:    run.DealID,
		OrgID:     run.OrgID,
		Status:    run.Status,
		Reused:    reused,
		Error:     run.Error,
		UpdatedAt: run.UpdatedAt,
	}
	if len(run.Result) == 0 {
		return row
	}
	var h headline
	if err := json.Unmarshal(run.Result, &h); err != nil {
		return row
	}

	switch run.RunType {
	case model.RunTypeTriage:
		if h.Triage != nil {
			score := h.Triage.NumericScore
			row.Score = &score
			row.Tier = h.Triage.Tier
			row.Decision = h.Triage.Decision
		}
		if h.Routing != nil {
			row.Lane = h.Routing.SLATier
		}
	case model.RunTypeScreening:
		if h.Scores != nil {
			row.Score = h.Scores.OverallScore
			switch {
			case h.Scores.HardFilterFailed:
				row.Decision = "FAIL"
			case h.Scores.IsProvisional:
				row.Decision = "PROVISIONAL"
			default:
				row.Decision = "PASS"
			}
		}
	case model.RunTypeDealScore:
		row.Score = h.TotalScore
		row.Tier = h.Tier
	}
	return row
}
