package evaluation

import (
	"time"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/routing"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/screening"
)

// Options holds the scoring tables an evaluation runs against.
type Options struct {
	SiteWeights         scorer.SiteWeights
	DealWeights         map[string]float64
	ScoreUnit           scorer.ScoreUnit
	Playbook            screening.Playbook
	SLA                 routing.SLATable
	DefaultPipelineStep int
}

// DefaultOptions returns the standard tables.
func DefaultOptions() Options {
	return Options{
		SiteWeights:         scorer.DefaultSiteWeights(),
		ScoreUnit:           scorer.UnitAuto,
		Playbook:            screening.DefaultPlaybook(),
		SLA:                 routing.DefaultSLATable(),
		DefaultPipelineStep: 1,
	}
}

// TriagePayload is the input of a triage evaluation. Site facts run through
// the site hard filters unless a precomputed HardFilter is supplied.
type TriagePayload struct {
	Scores       scorer.DimensionScores   `json:"scores"`
	Site         *scorer.SiteSignals      `json:"site,omitempty"`
	HardFilter   *scorer.HardFilterResult `json:"hard_filter,omitempty"`
	ParcelCount  int                      `json:"parcel_count,omitempty"`
	AvgRiskScore float64                  `json:"avg_risk_score,omitempty"`
	Confidence   float64                  `json:"confidence,omitempty"`
	PipelineStep int                      `json:"pipeline_step,omitempty"`
}

// TriageOutcome is a triage result with its lane and first task deadline.
type TriageOutcome struct {
	Triage    scorer.TriageResult `json:"triage"`
	Routing   routing.Routing     `json:"routing"`
	TaskDueAt time.Time           `json:"task_due_at"`
}

// Triage scores the site, routes it and dates its first task from createdAt.
func (o Options) Triage(p TriagePayload, createdAt time.Time) TriageOutcome {
	hf := p.HardFilter
	if hf == nil && p.Site != nil {
		res := scorer.EvaluateSiteHardFilters(*p.Site)
		hf = &res
	}
	tr := scorer.ComputeTriage(scorer.TriageInput{Scores: p.Scores, HardFilter: hf}, o.SiteWeights)
	rt := routing.Route(routing.SignalsFromTriage(p.ParcelCount, p.AvgRiskScore, p.Confidence, tr))

	step := p.PipelineStep
	if step == 0 {
		step = o.DefaultPipelineStep
	}
	sla := o.SLA
	if sla == nil {
		sla = routing.DefaultSLATable()
	}
	return TriageOutcome{
		Triage:    tr,
		Routing:   rt,
		TaskDueAt: sla.DueAt(createdAt, step, rt.SLATier),
	}
}

// ScreeningPayload is the input of a screening evaluation. Inputs is a loose
// key/value document; Values and Overrides come from document extraction and
// analyst edits. Per key, a field override beats Inputs, and Inputs beats an
// extracted value.
type ScreeningPayload struct {
	Inputs    map[string]any         `json:"inputs,omitempty"`
	Values    []screening.FieldValue `json:"values,omitempty"`
	Overrides []screening.Override   `json:"overrides,omitempty"`
}

// ScreeningOutcome extends the computation with the extracted fields whose
// confidence fell below the playbook threshold.
type ScreeningOutcome struct {
	screening.Computation
	LowConfidenceKeys []string `json:"low_confidence_keys"`
}

// Screen resolves the payload into inputs and runs the screening engine.
func (o Options) Screen(p ScreeningPayload) (*ScreeningOutcome, error) {
	in := mergeInputs(screening.InputsFromMap(p.Inputs), screening.BuildInputs(p.Values, nil))
	in = mergeInputs(screening.BuildInputs(nil, p.Overrides), in)

	comp, err := screening.Compute(in, o.Playbook)
	if err != nil {
		return nil, err
	}
	comp.Scores = screening.ApplyScoreOverrides(comp.Scores, p.Overrides)

	low := screening.FindLowConfidenceKeys(p.Values, o.Playbook.LowConfidenceThreshold, p.Overrides)
	if low == nil {
		low = []string{}
	}
	return &ScreeningOutcome{Computation: *comp, LowConfidenceKeys: low}, nil
}

// mergeInputs keeps every known value of base and fills the rest from extra.
func mergeInputs(base, extra screening.Inputs) screening.Inputs {
	pick := func(a, b *float64) *float64 {
		if a != nil {
			return a
		}
		return b
	}
	return screening.Inputs{
		PriceBasis:          pick(base.PriceBasis, extra.PriceBasis),
		TotalProjectCost:    pick(base.TotalProjectCost, extra.TotalProjectCost),
		SquareFeet:          pick(base.SquareFeet, extra.SquareFeet),
		NOIInPlace:          pick(base.NOIInPlace, extra.NOIInPlace),
		NOIStabilized:       pick(base.NOIStabilized, extra.NOIStabilized),
		TenantCreditScore:   pick(base.TenantCreditScore, extra.TenantCreditScore),
		AssetConditionScore: pick(base.AssetConditionScore, extra.AssetConditionScore),
		MarketDynamicsScore: pick(base.MarketDynamicsScore, extra.MarketDynamicsScore),
	}
}

// DealScorePayload is the input of a weighted deal score evaluation.
// Weights overlay the configured weights per category.
type DealScorePayload struct {
	Scores  map[string]*float64 `json:"scores"`
	Weights map[string]float64  `json:"weights,omitempty"`
	Unit    string              `json:"unit,omitempty"`
}

// DealScore scores the payload. The payload unit wins over the configured one.
func (o Options) DealScore(p DealScorePayload) (scorer.DealScoringResult, error) {
	weights := make(map[string]float64, len(o.DealWeights)+len(p.Weights))
	for k, v := range o.DealWeights {
		weights[k] = v
	}
	for k, v := range p.Weights {
		weights[k] = v
	}
	if err := scorer.ValidateDealWeights(weights); err != nil {
		return scorer.DealScoringResult{}, err
	}

	unit := o.ScoreUnit
	if p.Unit != "" {
		unit = scorer.ParseScoreUnit(p.Unit)
	}
	if unit == "" {
		unit = scorer.UnitAuto
	}
	return scorer.ComputeWeightedDealScoreUnit(p.Scores, weights, unit), nil
}

// fingerprint returns the option tables a run of type rt is computed under.
// It is hashed with the payload, so a stored result stops matching once any
// of them change.
func (o Options) fingerprint(rt model.RunType) any {
	switch rt {
	case model.RunTypeTriage:
		sla := o.SLA
		if sla == nil {
			sla = routing.DefaultSLATable()
		}
		return struct {
			SiteWeights scorer.SiteWeights `json:"site_weights"`
			SLA         routing.SLATable   `json:"sla"`
			Step        int                `json:"default_pipeline_step"`
		}{o.SiteWeights, sla, o.DefaultPipelineStep}
	case model.RunTypeScreening:
		return struct {
			Playbook screening.Playbook `json:"playbook"`
		}{o.Playbook}
	default:
		unit := o.ScoreUnit
		if unit == "" {
			unit = scorer.UnitAuto
		}
		return struct {
			DealWeights map[string]float64 `json:"deal_weights"`
			Unit        scorer.ScoreUnit   `json:"score_unit"`
		}{scorer.MergeDealWeights(o.DealWeights), unit}
	}
}
