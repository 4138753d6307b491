// Package screening computes financial screening metrics and the 1-5
// screening score for a deal from its raw economics and a playbook of
// underwriting assumptions.
package screening

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
)

var (
	// ErrInvalidAmortization is returned when a loan is configured with a
	// non-positive amortization term.
	ErrInvalidAmortization = eris.New("screening: amortization years must be positive")
	// ErrInvalidPlaybook marks any other structurally invalid playbook.
	ErrInvalidPlaybook = eris.New("screening: invalid playbook")
)

// DebtTemplate holds the debt assumptions used for provisional DSCR and
// cash-on-cash. IOYears is carried for reporting and does not change the
// loan constant.
type DebtTemplate struct {
	LTV          float64 `json:"ltv" yaml:"ltv"`
	InterestRate float64 `json:"interest_rate" yaml:"interest_rate"`
	AmortYears   int     `json:"amort_years" yaml:"amort_years"`
	IOYears      int     `json:"io_years" yaml:"io_years"`
	DebtFeeRate  float64 `json:"debt_fee_rate" yaml:"debt_fee_rate"`
}

// ClosingCostsTemplate estimates acquisition costs when total cost is unknown.
type ClosingCostsTemplate struct {
	LegalPct         float64 `json:"legal_pct" yaml:"legal_pct"`
	TitlePct         float64 `json:"title_pct" yaml:"title_pct"`
	DueDiligenceFlat float64 `json:"due_diligence_flat" yaml:"due_diligence_flat"`
}

// ReservesTemplate holds annual reserve assumptions.
type ReservesTemplate struct {
	CapexReservePerSFYear float64 `json:"capex_reserve_per_sf_year" yaml:"capex_reserve_per_sf_year"`
}

// ScoringBands holds ascending 1-5 score floors per metric.
type ScoringBands struct {
	CapRate     []float64 `json:"cap_rate" yaml:"cap_rate"`
	DSCR        []float64 `json:"dscr" yaml:"dscr"`
	CashOnCash  []float64 `json:"cash_on_cash" yaml:"cash_on_cash"`
	YieldOnCost []float64 `json:"yield_on_cost" yaml:"yield_on_cost"`
	YieldSpread []float64 `json:"yield_spread" yaml:"yield_spread"`
}

// Playbook bundles every assumption a screening run depends on. It is passed
// by value into Compute and never modified.
type Playbook struct {
	LowConfidenceThreshold float64                              `json:"low_confidence_threshold" yaml:"low_confidence_threshold"`
	HardFilters            scorer.FinancialHardFilterThresholds `json:"hard_filters" yaml:"hard_filters"`
	Debt                   DebtTemplate                         `json:"debt_template" yaml:"debt_template"`
	ClosingCosts           ClosingCostsTemplate                 `json:"closing_costs" yaml:"closing_costs"`
	Reserves               ReservesTemplate                     `json:"reserves" yaml:"reserves"`
	Bands                  ScoringBands                         `json:"scoring_bands" yaml:"scoring_bands"`
}

// DefaultPlaybook returns the standard industrial screening playbook.
func DefaultPlaybook() Playbook {
	return Playbook{
		LowConfidenceThreshold: 0.70,
		HardFilters:            scorer.DefaultFinancialHardFilters(),
		Debt: DebtTemplate{
			LTV:          0.65,
			InterestRate: 0.07,
			AmortYears:   25,
			IOYears:      0,
			DebtFeeRate:  0.01,
		},
		ClosingCosts: ClosingCostsTemplate{
			LegalPct:         0.005,
			TitlePct:         0.003,
			DueDiligenceFlat: 25_000,
		},
		Reserves: ReservesTemplate{CapexReservePerSFYear: 0.25},
		Bands: ScoringBands{
			CapRate:     []float64{0.07, 0.08, 0.09, 0.10, 0.11},
			DSCR:        []float64{1.25, 1.40, 1.55, 1.70, 1.85},
			CashOnCash:  []float64{0.06, 0.08, 0.10, 0.12, 0.14},
			YieldOnCost: []float64{0.06, 0.08, 0.10, 0.12, 0.14},
			YieldSpread: []float64{0.015, 0.020, 0.025, 0.030, 0.035},
		},
	}
}

// Validate reports structural problems with the playbook. A bad amortization
// term wraps ErrInvalidAmortization; everything else wraps ErrInvalidPlaybook.
func (p Playbook) Validate() error {
	if p.Debt.AmortYears <= 0 {
		return eris.Wrapf(ErrInvalidAmortization, "screening: amort_years=%d", p.Debt.AmortYears)
	}

	var errs []string
	check := func(name string, v, lo, hi float64) {
		if math.IsNaN(v) || v < lo || v > hi {
			errs = append(errs, fmt.Sprintf("%s must be in [%g, %g], got %g", name, lo, hi, v))
		}
	}
	check("low_confidence_threshold", p.LowConfidenceThreshold, 0, 1)
	check("debt_template.ltv", p.Debt.LTV, 0, 1)
	check("debt_template.interest_rate", p.Debt.InterestRate, 0, 1)
	check("debt_template.debt_fee_rate", p.Debt.DebtFeeRate, 0, 1)
	check("closing_costs.legal_pct", p.ClosingCosts.LegalPct, 0, 1)
	check("closing_costs.title_pct", p.ClosingCosts.TitlePct, 0, 1)
	check("closing_costs.due_diligence_flat", p.ClosingCosts.DueDiligenceFlat, 0, math.MaxFloat64)
	check("reserves.capex_reserve_per_sf_year", p.Reserves.CapexReservePerSFYear, 0, math.MaxFloat64)
	check("hard_filters.min_dscr", p.HardFilters.MinDSCR, 0, math.MaxFloat64)
	check("hard_filters.min_cap_rate", p.HardFilters.MinCapRate, 0, 1)
	check("hard_filters.min_yield_spread", p.HardFilters.MinYieldSpread, 0, 1)
	if p.Debt.IOYears < 0 {
		errs = append(errs, fmt.Sprintf("debt_template.io_years must be >= 0, got %d", p.Debt.IOYears))
	}

	bands := []struct {
		name string
		th   []float64
	}{
		{"cap_rate", p.Bands.CapRate},
		{"dscr", p.Bands.DSCR},
		{"cash_on_cash", p.Bands.CashOnCash},
		{"yield_on_cost", p.Bands.YieldOnCost},
		{"yield_spread", p.Bands.YieldSpread},
	}
	for _, b := range bands {
		if !scorer.AscendingThresholds(b.th) {
			errs = append(errs, fmt.Sprintf("scoring_bands.%s must be ascending", b.name))
		}
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidPlaybook, "screening: playbook validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
