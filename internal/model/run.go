// Package model defines the records persisted for evaluation runs.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RunType names the computation an evaluation run performed.
type RunType string

const (
	RunTypeTriage    RunType = "triage"
	RunTypeScreening RunType = "screening"
	RunTypeDealScore RunType = "deal_score"
)

// RunTypes returns every supported run type.
func RunTypes() []RunType {
	return []RunType{RunTypeTriage, RunTypeScreening, RunTypeDealScore}
}

// ParseRunType normalizes s and checks it is a supported run type.
func ParseRunType(s string) (RunType, error) {
	rt := RunType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range RunTypes() {
		if rt == known {
			return rt, nil
		}
	}
	return "", eris.Errorf("model: unknown run type %q", s)
}

// RunStatus represents the current state of an evaluation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one evaluation of a deal. Input and Result hold the JSON request
// payload and the JSON computation result for the run type.
type Run struct {
	ID        string          `json:"id"`
	RunType   RunType         `json:"run_type"`
	DealID    string          `json:"deal_id"`
	OrgID     string          `json:"org_id"`
	InputHash string          `json:"input_hash"`
	Status    RunStatus       `json:"status"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewRun carries the fields needed to start a run.
type NewRun struct {
	RunType   RunType
	DealID    string
	OrgID     string
	InputHash string
	Input     json.RawMessage
}
