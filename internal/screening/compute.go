package screening

import (
	"sort"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/finance"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/numeric"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
)

// Missing input keys reported in ScoreBreakdown.MissingKeys.
const (
	KeyPriceBasis     = "price_basis"
	KeySquareFeet     = "square_feet"
	KeyNOIInPlace     = "noi_in_place"
	KeyNOIStabilized  = "noi_stabilized"
	KeyTenantCredit   = "tenant_credit"
	KeyAssetCondition = "asset_condition"
	KeyMarketDynamics = "market_dynamics"
)

// Metric score keys.
const (
	ScoreCapRate     = "cap_rate"
	ScoreYieldOnCost = "yield_on_cost"
	ScoreCashOnCash  = "cash_on_cash"
	ScoreDSCR        = "dscr"
)

var (
	financialScoreKeys   = []string{ScoreCapRate, ScoreYieldOnCost, ScoreCashOnCash, ScoreDSCR}
	qualitativeScoreKeys = []string{KeyTenantCredit, KeyAssetCondition, KeyMarketDynamics}
)

const (
	metricPlaces = 4
	scorePlaces  = 2
)

// Inputs are the raw deal economics. Money is annual where it applies and
// rates are decimals (7% is 0.07). Qualitative scores are on a 1-5 scale.
type Inputs struct {
	PriceBasis          *float64 `json:"price_basis,omitempty"`
	TotalProjectCost    *float64 `json:"total_project_cost,omitempty"`
	SquareFeet          *float64 `json:"square_feet,omitempty"`
	NOIInPlace          *float64 `json:"noi_in_place,omitempty"`
	NOIStabilized       *float64 `json:"noi_stabilized,omitempty"`
	TenantCreditScore   *float64 `json:"tenant_credit_score,omitempty"`
	AssetConditionScore *float64 `json:"asset_condition_score,omitempty"`
	MarketDynamicsScore *float64 `json:"market_dynamics_score,omitempty"`
}

// Metrics are the derived values behind the score, rounded to 4 places.
type Metrics struct {
	PriceBasis        *float64 `json:"price_basis"`
	TotalCost         *float64 `json:"total_cost"`
	LoanAmount        *float64 `json:"loan_amount"`
	EquityInvested    *float64 `json:"equity_invested"`
	LoanConstant      *float64 `json:"loan_constant"`
	AnnualDebtService *float64 `json:"annual_debt_service"`
	AnnualReserves    *float64 `json:"annual_reserves"`
	CapRateInPlace    *float64 `json:"cap_rate_in_place"`
	CapRateStabilized *float64 `json:"cap_rate_stabilized"`
	CapRateUsed       *float64 `json:"cap_rate_used"`
	NOIUsed           *float64 `json:"noi_used"`
	YieldOnCost       *float64 `json:"yield_on_cost"`
	YieldSpread       *float64 `json:"yield_spread"`
	DSCR              *float64 `json:"dscr"`
	CashOnCash        *float64 `json:"cash_on_cash"`
	DebtYield         *float64 `json:"debt_yield"`
}

// ScoreBreakdown is the scored result of a screening run.
type ScoreBreakdown struct {
	OverallScore      *float64            `json:"overall_score"`
	FinancialScore    *float64            `json:"financial_score"`
	QualitativeScore  *float64            `json:"qualitative_score"`
	IsProvisional     bool                `json:"is_provisional"`
	HardFilterFailed  bool                `json:"hard_filter_failed"`
	HardFilterReasons []string            `json:"hard_filter_reasons"`
	MissingKeys       []string            `json:"missing_keys"`
	MetricScores      map[string]*float64 `json:"metric_scores"`
	MetricValues      map[string]*float64 `json:"metric_values"`
}

// Computation pairs the derived metrics with their scores.
type Computation struct {
	Metrics Metrics        `json:"metrics"`
	Scores  ScoreBreakdown `json:"scores"`
}

// Compute derives screening metrics from in and scores them against pb.
//
// Missing inputs never fail the computation: dependent metrics become nil and
// the missing keys are reported. The only error is a structurally invalid
// playbook, which is checked before any input is read.
func Compute(in Inputs, pb Playbook) (*Computation, error) {
	if err := pb.Validate(); err != nil {
		return nil, err
	}

	var missing []string
	known := func(key string, v *float64) *float64 {
		v = finite(v)
		if v == nil {
			missing = append(missing, key)
		}
		return v
	}

	price := known(KeyPriceBasis, in.PriceBasis)
	sf := known(KeySquareFeet, in.SquareFeet)
	noiInPlace := known(KeyNOIInPlace, in.NOIInPlace)
	noiStabilized := known(KeyNOIStabilized, in.NOIStabilized)

	// Stabilized NOI drives valuation; in-place NOI drives near-term cash flow.
	noiForCap := numeric.Coalesce(noiStabilized, noiInPlace)
	noiForCashflow := numeric.Coalesce(noiInPlace, noiStabilized)

	capInPlace := numeric.SafeDiv(noiInPlace, price)
	capStabilized := numeric.SafeDiv(noiStabilized, price)
	capUsed := numeric.SafeDiv(noiForCap, price)

	debt := pb.Debt
	loan := numeric.Scale(price, debt.LTV)
	var loanConst *float64
	if loan != nil {
		lc, err := LoanConstant(debt.InterestRate, debt.AmortYears)
		if err != nil {
			return nil, err
		}
		loanConst = &lc
	}
	debtService := numeric.Mul(loan, loanConst)

	totalCost := finite(in.TotalProjectCost)
	if totalCost == nil && price != nil && loan != nil {
		cc := pb.ClosingCosts
		v := *price + *price*cc.LegalPct + *price*cc.TitlePct + cc.DueDiligenceFlat + *loan*debt.DebtFeeRate
		totalCost = &v
	}

	equity := numeric.Sub(totalCost, loan)
	reserves := numeric.Scale(sf, pb.Reserves.CapexReservePerSFYear)
	noiAfterReserves := numeric.Sub(noiForCashflow, reserves)
	dscr := numeric.SafeDiv(noiAfterReserves, debtService)

	yieldOnCost := numeric.SafeDiv(noiForCap, totalCost)
	yieldSpread := numeric.Sub(yieldOnCost, loanConst)

	var cashOnCash *float64
	if equity != nil && *equity > 0 {
		cashOnCash = numeric.SafeDiv(numeric.Sub(noiAfterReserves, debtService), equity)
	}
	debtYield := finance.DebtYield(noiForCashflow, loan)

	bands := pb.Bands
	metricScores := map[string]*float64{
		ScoreCapRate:     scorer.ScoreFromThresholdsFloat(capUsed, bands.CapRate),
		ScoreYieldOnCost: scorer.ScoreFromThresholdsFloat(yieldOnCost, bands.YieldOnCost),
		ScoreCashOnCash:  scorer.ScoreFromThresholdsFloat(cashOnCash, bands.CashOnCash),
		ScoreDSCR:        scorer.ScoreFromThresholdsFloat(dscr, bands.DSCR),
	}
	qualitative := []struct {
		key string
		v   *float64
	}{
		{KeyTenantCredit, in.TenantCreditScore},
		{KeyAssetCondition, in.AssetConditionScore},
		{KeyMarketDynamics, in.MarketDynamicsScore},
	}
	for _, q := range qualitative {
		v := known(q.key, q.v)
		if v != nil {
			v = numeric.Ptr(numeric.Clamp(*v, 1, 5))
		}
		metricScores[q.key] = v
	}

	financialScore := avgOf(metricScores, financialScoreKeys)
	qualitativeScore := avgOf(metricScores, qualitativeScoreKeys)

	var overall *float64
	if financialScore != nil && qualitativeScore != nil {
		overall = numeric.Ptr(0.5*(*financialScore) + 0.5*(*qualitativeScore))
	} else {
		overall = numeric.Coalesce(financialScore, qualitativeScore)
	}

	provisional := false
	for _, keys := range [][]string{financialScoreKeys, qualitativeScoreKeys} {
		for _, k := range keys {
			if metricScores[k] == nil {
				provisional = true
			}
		}
	}

	hf := scorer.EvaluateFinancialHardFilters(scorer.FinancialHardFilterInput{
		DSCR:        dscr,
		CapRate:     capUsed,
		YieldSpread: yieldSpread,
	}, pb.HardFilters)

	metricValues := map[string]*float64{
		"cap_rate_in_place":   capInPlace,
		"cap_rate_stabilized": capStabilized,
		"cap_rate_used":       capUsed,
		"yield_on_cost":       yieldOnCost,
		"yield_spread":        yieldSpread,
		"cash_on_cash":        cashOnCash,
		"dscr":                dscr,
		"loan_constant":       loanConst,
		"debt_yield":          debtYield,
	}
	for k, v := range metricValues {
		metricValues[k] = numeric.RoundPtr(v, metricPlaces)
	}
	for k, v := range metricScores {
		metricScores[k] = numeric.RoundPtr(v, scorePlaces)
	}

	r4 := func(v *float64) *float64 { return numeric.RoundPtr(v, metricPlaces) }
	return &Computation{
		Metrics: Metrics{
			PriceBasis:        r4(price),
			TotalCost:         r4(totalCost),
			LoanAmount:        r4(loan),
			EquityInvested:    r4(equity),
			LoanConstant:      r4(loanConst),
			AnnualDebtService: r4(debtService),
			AnnualReserves:    r4(reserves),
			CapRateInPlace:    r4(capInPlace),
			CapRateStabilized: r4(capStabilized),
			CapRateUsed:       r4(capUsed),
			NOIUsed:           r4(noiForCap),
			YieldOnCost:       r4(yieldOnCost),
			YieldSpread:       r4(yieldSpread),
			DSCR:              r4(dscr),
			CashOnCash:        r4(cashOnCash),
			DebtYield:         r4(debtYield),
		},
		Scores: ScoreBreakdown{
			OverallScore:      numeric.RoundPtr(overall, scorePlaces),
			FinancialScore:    numeric.RoundPtr(financialScore, scorePlaces),
			QualitativeScore:  numeric.RoundPtr(qualitativeScore, scorePlaces),
			IsProvisional:     provisional,
			HardFilterFailed:  !hf.Passed,
			HardFilterReasons: hf.Disqualifiers,
			MissingKeys:       sortedUnique(missing),
			MetricScores:      metricScores,
			MetricValues:      metricValues,
		},
	}, nil
}

func finite(v *float64) *float64 {
	if v == nil || !numeric.IsFinite(*v) {
		return nil
	}
	return v
}

func avgOf(scores map[string]*float64, keys []string) *float64 {
	vals := make([]*float64, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, scores[k])
	}
	return numeric.AvgPresent(vals...)
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
