package scorer

import "github.com/blakegallagher1/gpc-cres-sub006/internal/numeric"

// Dimension names a site triage dimension.
type Dimension string

// Site triage dimensions.
const (
	DimAccess        Dimension = "access"
	DimDrainage      Dimension = "drainage"
	DimAdjacency     Dimension = "adjacency"
	DimEnvironmental Dimension = "environmental"
	DimUtilities     Dimension = "utilities"
	DimPolitics      Dimension = "politics"
	DimZoning        Dimension = "zoning"
	DimAcreage       Dimension = "acreage"
)

var dimensionOrder = [...]Dimension{
	DimAccess, DimDrainage, DimAdjacency, DimEnvironmental,
	DimUtilities, DimPolitics, DimZoning, DimAcreage,
}

// Dimensions returns every triage dimension in canonical order.
func Dimensions() []Dimension {
	out := make([]Dimension, len(dimensionOrder))
	copy(out, dimensionOrder[:])
	return out
}

// Decision is the triage disposition.
type Decision string

// Triage decisions.
const (
	DecisionKill    Decision = "KILL"
	DecisionHold    Decision = "HOLD"
	DecisionAdvance Decision = "ADVANCE"
)

// Tier is the coarse triage color.
type Tier string

// Triage tiers. Gray marks a provisional result built from partial data.
const (
	TierGreen  Tier = "Green"
	TierYellow Tier = "Yellow"
	TierRed    Tier = "Red"
	TierGray   Tier = "Gray"
)

// Triage decision thresholds on the 0-100 scale.
const (
	AdvanceThreshold = 70.0
	HoldThreshold    = 40.0
)

// DimensionScores holds the 0-100 score of each dimension; nil means unknown.
type DimensionScores struct {
	Access        *float64 `json:"access,omitempty"`
	Drainage      *float64 `json:"drainage,omitempty"`
	Adjacency     *float64 `json:"adjacency,omitempty"`
	Environmental *float64 `json:"environmental,omitempty"`
	Utilities     *float64 `json:"utilities,omitempty"`
	Politics      *float64 `json:"politics,omitempty"`
	Zoning        *float64 `json:"zoning,omitempty"`
	Acreage       *float64 `json:"acreage,omitempty"`
}

// Get returns the score for a single dimension.
func (s DimensionScores) Get(d Dimension) *float64 {
	switch d {
	case DimAccess:
		return s.Access
	case DimDrainage:
		return s.Drainage
	case DimAdjacency:
		return s.Adjacency
	case DimEnvironmental:
		return s.Environmental
	case DimUtilities:
		return s.Utilities
	case DimPolitics:
		return s.Politics
	case DimZoning:
		return s.Zoning
	case DimAcreage:
		return s.Acreage
	default:
		return nil
	}
}

// TriageInput is the input to ComputeTriage. HardFilter is optional; when
// supplied and failed the site is killed outright.
type TriageInput struct {
	Scores     DimensionScores   `json:"scores"`
	HardFilter *HardFilterResult `json:"hard_filter,omitempty"`
}

// TriageResult is the site triage outcome.
type TriageResult struct {
	Decision      Decision              `json:"decision"`
	NumericScore  float64               `json:"numeric_score"`
	Tier          Tier                  `json:"tier"`
	Breakdown     map[Dimension]float64 `json:"breakdown"`
	Disqualifiers []string              `json:"disqualifiers"`
	MissingData   []Dimension           `json:"missing_data"`
	IsProvisional bool                  `json:"is_provisional"`
}

// ComputeTriage scores a site from its dimension scores.
//
// Absent dimensions are excluded from both the weighted sum and the weight
// total, so a site is scored only on what is known. A non-finite score counts
// as absent. If any dimension is
// missing the tier is Gray, but the decision still follows the thresholds.
func ComputeTriage(in TriageInput, w SiteWeights) TriageResult {
	breakdown := make(map[Dimension]float64, len(dimensionOrder))
	missing := []Dimension{}
	var num, den float64

	for _, d := range dimensionOrder {
		v := in.Scores.Get(d)
		if v == nil || !numeric.IsFinite(*v) {
			missing = append(missing, d)
			breakdown[d] = 0
			continue
		}
		clamped := numeric.Clamp(*v, 0, 100)
		breakdown[d] = clamped
		num += clamped * w.Weight(d)
		den += w.Weight(d)
	}

	disqualifiers := []string{}
	if in.HardFilter != nil {
		disqualifiers = append(disqualifiers, in.HardFilter.Disqualifiers...)
	}

	res := TriageResult{
		Breakdown:     breakdown,
		Disqualifiers: disqualifiers,
		MissingData:   missing,
		IsProvisional: len(missing) > 0,
	}

	if in.HardFilter != nil && !in.HardFilter.Passed {
		res.Decision = DecisionKill
		res.NumericScore = 0
		res.Tier = TierRed
		return res
	}

	if den > 0 {
		res.NumericScore = numeric.Round(num/den, 2)
	}
	res.Decision, res.Tier = classifyTriage(res.NumericScore)
	if res.IsProvisional {
		res.Tier = TierGray
	}
	return res
}

func classifyTriage(score float64) (Decision, Tier) {
	switch {
	case score >= AdvanceThreshold:
		return DecisionAdvance, TierGreen
	case score >= HoldThreshold:
		return DecisionHold, TierYellow
	default:
		return DecisionKill, TierRed
	}
}
