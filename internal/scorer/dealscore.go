package scorer

import (
	"math"
	"sort"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/numeric"
)

// DealTier is the A-D portfolio quality bucket.
type DealTier string

// Deal tiers, best first.
const (
	DealTierA DealTier = "A"
	DealTierB DealTier = "B"
	DealTierC DealTier = "C"
	DealTierD DealTier = "D"
)

// Deal tier floors on the 0-100 scale.
const (
	DealTierAFloor = 85.0
	DealTierBFloor = 70.0
	DealTierCFloor = 55.0
)

// ScoreUnit tells the deal scorer how to read raw category scores.
type ScoreUnit string

// Supported raw score units.
const (
	// UnitAuto treats values <= 1 as fractions and anything larger as
	// percent points. A raw score of exactly 1 reads as 100.
	UnitAuto     ScoreUnit = "auto"
	UnitFraction ScoreUnit = "fraction"
	UnitPercent  ScoreUnit = "percent"
)

// ParseScoreUnit maps a user-supplied unit string to a ScoreUnit. Empty and
// unknown strings resolve to UnitAuto.
func ParseScoreUnit(s string) ScoreUnit {
	switch ScoreUnit(s) {
	case UnitFraction:
		return UnitFraction
	case UnitPercent:
		return UnitPercent
	default:
		return UnitAuto
	}
}

// DealScoringResult is the weighted deal score outcome.
type DealScoringResult struct {
	RawScores        map[string]*float64 `json:"raw_scores"`
	NormalizedScores map[string]float64  `json:"normalized_scores"`
	WeightedScores   map[string]float64  `json:"weighted_scores"`
	Weights          map[string]float64  `json:"weights"`
	TotalScore       float64             `json:"total_score"`
	Tier             DealTier            `json:"tier"`
}

// ComputeWeightedDealScore scores a deal across weighted categories, reading
// raw scores with the UnitAuto heuristic.
func ComputeWeightedDealScore(raw map[string]*float64, overrides map[string]float64) DealScoringResult {
	return ComputeWeightedDealScoreUnit(raw, overrides, UnitAuto)
}

// ComputeWeightedDealScoreUnit scores a deal with an explicit raw score unit.
//
// Overrides merge over DefaultDealWeights and are not renormalized. Every
// category in the resolved weight table is scored; a missing raw score
// normalizes to 0 and so drags the total down.
func ComputeWeightedDealScoreUnit(raw map[string]*float64, overrides map[string]float64, unit ScoreUnit) DealScoringResult {
	weights := MergeDealWeights(overrides)

	rawCopy := make(map[string]*float64, len(raw))
	for k, v := range raw {
		if v != nil {
			rawCopy[k] = numeric.Ptr(*v)
		} else {
			rawCopy[k] = nil
		}
	}

	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]float64, len(weights))
	weighted := make(map[string]float64, len(weights))
	var total float64
	for _, k := range keys {
		n := normalizeDealScore(raw[k], unit)
		normalized[k] = n
		weighted[k] = n * weights[k]
		total += weighted[k]
	}
	total = numeric.Round(total, 2)

	return DealScoringResult{
		RawScores:        rawCopy,
		NormalizedScores: normalized,
		WeightedScores:   weighted,
		Weights:          weights,
		TotalScore:       total,
		Tier:             ClassifyDealTier(total),
	}
}

// ClassifyDealTier maps a 0-100 total to its tier.
func ClassifyDealTier(total float64) DealTier {
	switch {
	case total >= DealTierAFloor:
		return DealTierA
	case total >= DealTierBFloor:
		return DealTierB
	case total >= DealTierCFloor:
		return DealTierC
	default:
		return DealTierD
	}
}

func normalizeDealScore(v *float64, unit ScoreUnit) float64 {
	if v == nil || math.IsNaN(*v) {
		return 0
	}
	x := *v
	switch unit {
	case UnitFraction:
		x *= 100
	case UnitPercent:
	default:
		if x <= 1 {
			x *= 100
		}
	}
	return numeric.Clamp(x, 0, 100)
}
