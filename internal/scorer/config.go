// Package scorer implements the deterministic scoring core for deal
// evaluation: band scoring, hard filters, site triage and weighted deal
// tiering. Nothing in this package performs I/O or keeps state between calls.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// SiteWeights holds the relative weight of each site triage dimension.
// Weights need not sum to 1; the triage scorer renormalizes by the weights
// of the dimensions actually present.
type SiteWeights struct {
	Access        float64 `json:"access" yaml:"access" mapstructure:"access"`
	Drainage      float64 `json:"drainage" yaml:"drainage" mapstructure:"drainage"`
	Adjacency     float64 `json:"adjacency" yaml:"adjacency" mapstructure:"adjacency"`
	Environmental float64 `json:"environmental" yaml:"environmental" mapstructure:"environmental"`
	Utilities     float64 `json:"utilities" yaml:"utilities" mapstructure:"utilities"`
	Politics      float64 `json:"politics" yaml:"politics" mapstructure:"politics"`
	Zoning        float64 `json:"zoning" yaml:"zoning" mapstructure:"zoning"`
	Acreage       float64 `json:"acreage" yaml:"acreage" mapstructure:"acreage"`
}

// DefaultSiteWeights returns the standard site triage weights (sum = 1).
func DefaultSiteWeights() SiteWeights {
	return SiteWeights{
		Access:        0.15,
		Drainage:      0.15,
		Adjacency:     0.10,
		Environmental: 0.15,
		Utilities:     0.15,
		Politics:      0.05,
		Zoning:        0.15,
		Acreage:       0.10,
	}
}

// Weight returns the weight for a single dimension.
func (w SiteWeights) Weight(d Dimension) float64 {
	switch d {
	case DimAccess:
		return w.Access
	case DimDrainage:
		return w.Drainage
	case DimAdjacency:
		return w.Adjacency
	case DimEnvironmental:
		return w.Environmental
	case DimUtilities:
		return w.Utilities
	case DimPolitics:
		return w.Politics
	case DimZoning:
		return w.Zoning
	case DimAcreage:
		return w.Acreage
	default:
		return 0
	}
}

// Sum returns the sum of all dimension weights.
func (w SiteWeights) Sum() float64 {
	var sum float64
	for _, d := range dimensionOrder {
		sum += w.Weight(d)
	}
	return sum
}

// Validate checks that the weights are usable.
func (w SiteWeights) Validate() error {
	var errs []string
	for _, d := range dimensionOrder {
		v := w.Weight(d)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s weight must be a finite value >= 0", d))
		}
	}
	if len(errs) == 0 && w.Sum() <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: site weights validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Deal scoring categories used by DefaultDealWeights.
const (
	CategoryFinancial = "financial"
	CategoryLocation  = "location"
	CategoryUtilities = "utilities"
	CategoryZoning    = "zoning"
	CategoryMarket    = "market"
	CategoryRisk      = "risk"
)

// DefaultDealWeights returns a fresh copy of the portfolio deal weights.
// Weights sum to 1 so a perfect deal totals 100.
func DefaultDealWeights() map[string]float64 {
	return map[string]float64{
		CategoryFinancial: 0.30,
		CategoryLocation:  0.20,
		CategoryUtilities: 0.10,
		CategoryZoning:    0.15,
		CategoryMarket:    0.15,
		CategoryRisk:      0.10,
	}
}

// MergeDealWeights overlays overrides onto the defaults. The result is a new map.
func MergeDealWeights(overrides map[string]float64) map[string]float64 {
	merged := DefaultDealWeights()
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// ValidateDealWeights rejects negative or non-finite weights.
func ValidateDealWeights(weights map[string]float64) error {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []string
	for _, k := range keys {
		v := weights[k]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s weight must be a finite value >= 0", k))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: deal weights validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FinancialHardFilterThresholds holds the minimums a deal must clear.
// Each check only applies when the corresponding metric is known.
type FinancialHardFilterThresholds struct {
	MinDSCR        float64 `json:"min_dscr" yaml:"min_dscr" mapstructure:"min_dscr"`
	MinCapRate     float64 `json:"min_cap_rate" yaml:"min_cap_rate" mapstructure:"min_cap_rate"`
	MinYieldSpread float64 `json:"min_yield_spread" yaml:"min_yield_spread" mapstructure:"min_yield_spread"`
}

// DefaultFinancialHardFilters returns the standard financial minimums.
func DefaultFinancialHardFilters() FinancialHardFilterThresholds {
	return FinancialHardFilterThresholds{
		MinDSCR:        1.25,
		MinCapRate:     0.07,
		MinYieldSpread: 0.015,
	}
}
