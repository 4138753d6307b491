// Package routing assigns a deal to a processing lane from its triage
// signals and computes task due dates from per-lane SLA offsets.
package routing

import (
	"fmt"
	"strings"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
)

// Level is a low/medium/high classification.
type Level string

// Classification levels.
const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// SLATier is the processing lane for a deal.
type SLATier string

// SLA tiers.
const (
	TierFastTriage    SLATier = "fast-triage"
	TierStandard      SLATier = "standard"
	TierDeepDiligence SLATier = "deep-diligence"
)

// Queue returns the work queue that serves the tier. Unknown tiers go to the
// standard queue.
func (t SLATier) Queue() string {
	switch t {
	case TierFastTriage:
		return "triage-fast"
	case TierDeepDiligence:
		return "diligence-deep"
	default:
		return "triage-standard"
	}
}

// ParseSLATier maps a string to a known tier; ok is false for anything else.
func ParseSLATier(s string) (SLATier, bool) {
	switch t := SLATier(strings.TrimSpace(strings.ToLower(s))); t {
	case TierFastTriage, TierStandard, TierDeepDiligence:
		return t, true
	default:
		return TierStandard, false
	}
}

// Complexity thresholds. A value at or above any high threshold makes the
// deal high complexity; at or above any medium threshold, medium.
const (
	HighParcelCount       = 4
	HighAvgRiskScore      = 7.5
	HighDisqualifierCount = 3
	HighMissingDataCount  = 3

	MediumParcelCount       = 2
	MediumAvgRiskScore      = 5.0
	MediumDisqualifierCount = 1
	MediumMissingDataCount  = 1
)

// Confidence thresholds.
const (
	HighConfidence   = 0.75
	MediumConfidence = 0.55
)

// SignalInput carries the triage signals routing depends on.
type SignalInput struct {
	ParcelCount       int     `json:"parcel_count"`
	AvgRiskScore      float64 `json:"avg_risk_score"`
	DisqualifierCount int     `json:"disqualifier_count"`
	Confidence        float64 `json:"confidence"`
	MissingDataCount  int     `json:"missing_data_count"`
}

// Routing is the lane assignment for a deal.
type Routing struct {
	Complexity Level   `json:"complexity"`
	Confidence Level   `json:"confidence"`
	SLATier    SLATier `json:"sla_tier"`
	Queue      string  `json:"queue"`
	Rationale  string  `json:"rationale"`
}

// SignalsFromTriage builds routing signals from a triage result plus the
// parcel-level facts triage does not carry.
func SignalsFromTriage(parcelCount int, avgRiskScore, confidence float64, tr scorer.TriageResult) SignalInput {
	return SignalInput{
		ParcelCount:       parcelCount,
		AvgRiskScore:      avgRiskScore,
		DisqualifierCount: len(tr.Disqualifiers),
		Confidence:        confidence,
		MissingDataCount:  len(tr.MissingData),
	}
}

// ClassifyComplexity returns the complexity level. Any single signal over a
// threshold escalates the whole deal.
func ClassifyComplexity(in SignalInput) Level {
	level, _ := complexity(in)
	return level
}

func complexity(in SignalInput) (Level, []string) {
	if fired := triggers(in, HighParcelCount, HighAvgRiskScore, HighDisqualifierCount, HighMissingDataCount); len(fired) > 0 {
		return LevelHigh, fired
	}
	if fired := triggers(in, MediumParcelCount, MediumAvgRiskScore, MediumDisqualifierCount, MediumMissingDataCount); len(fired) > 0 {
		return LevelMedium, fired
	}
	return LevelLow, nil
}

func triggers(in SignalInput, parcels int, risk float64, disq, missing int) []string {
	var fired []string
	if in.ParcelCount >= parcels {
		fired = append(fired, fmt.Sprintf("parcels=%d>=%d", in.ParcelCount, parcels))
	}
	if in.AvgRiskScore >= risk {
		fired = append(fired, fmt.Sprintf("avg_risk=%g>=%g", in.AvgRiskScore, risk))
	}
	if in.DisqualifierCount >= disq {
		fired = append(fired, fmt.Sprintf("disqualifiers=%d>=%d", in.DisqualifierCount, disq))
	}
	if in.MissingDataCount >= missing {
		fired = append(fired, fmt.Sprintf("missing_data=%d>=%d", in.MissingDataCount, missing))
	}
	return fired
}

// ClassifyConfidence returns the confidence level for a 0-1 confidence value.
func ClassifyConfidence(confidence float64) Level {
	switch {
	case confidence >= HighConfidence:
		return LevelHigh
	case confidence >= MediumConfidence:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Route picks the SLA tier and queue. Deep diligence wins whenever
// complexity is high or confidence is low; fast triage needs both low
// complexity and high confidence.
func Route(in SignalInput) Routing {
	cx, fired := complexity(in)
	conf := ClassifyConfidence(in.Confidence)

	var tier SLATier
	switch {
	case cx == LevelHigh || conf == LevelLow:
		tier = TierDeepDiligence
	case cx == LevelLow && conf == LevelHigh:
		tier = TierFastTriage
	default:
		tier = TierStandard
	}

	reason := "none"
	if len(fired) > 0 {
		reason = strings.Join(fired, ", ")
	}
	return Routing{
		Complexity: cx,
		Confidence: conf,
		SLATier:    tier,
		Queue:      tier.Queue(),
		Rationale:  fmt.Sprintf("complexity=%s (%s); confidence=%s (%.2f) → %s", cx, reason, conf, in.Confidence, tier),
	}
}
