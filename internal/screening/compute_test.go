package screening

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/numeric"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
)

func completeInputs() Inputs {
	return Inputs{
		PriceBasis:          numeric.Ptr(10_000_000),
		TotalProjectCost:    numeric.Ptr(10_300_000),
		SquareFeet:          numeric.Ptr(100_000),
		NOIInPlace:          numeric.Ptr(900_000),
		NOIStabilized:       numeric.Ptr(1_100_000),
		TenantCreditScore:   numeric.Ptr(4),
		AssetConditionScore: numeric.Ptr(3),
		MarketDynamicsScore: numeric.Ptr(4),
	}
}

func ptrValue(t *testing.T, p *float64) float64 {
	t.Helper()
	require.NotNil(t, p)
	return *p
}

func TestLoanConstant(t *testing.T) {
	lc, err := LoanConstant(0.07, 25)
	require.NoError(t, err)
	assert.InDelta(t, 0.0848135, lc, 1e-4)

	lc, err = LoanConstant(0, 25)
	require.NoError(t, err)
	assert.Equal(t, 1.0/25.0, lc)

	lc, err = LoanConstant(-0.01, 20)
	require.NoError(t, err)
	assert.Equal(t, 1.0/20.0, lc)
}

func TestLoanConstant_InvalidAmortization(t *testing.T) {
	for _, years := range []int{0, -1, -25} {
		_, err := LoanConstant(0.07, years)
		assert.ErrorIs(t, err, ErrInvalidAmortization, "years=%d", years)
	}
}

func TestCompute_CompleteInputs(t *testing.T) {
	got, err := Compute(completeInputs(), DefaultPlaybook())
	require.NoError(t, err)

	s := got.Scores
	assert.False(t, s.IsProvisional)
	assert.False(t, s.HardFilterFailed)
	assert.Empty(t, s.HardFilterReasons)
	assert.Empty(t, s.MissingKeys)

	assert.Equal(t, 3.25, ptrValue(t, s.FinancialScore))
	assert.Equal(t, 3.67, ptrValue(t, s.QualitativeScore))
	assert.Equal(t, 3.46, ptrValue(t, s.OverallScore))

	assert.Equal(t, 5.0, ptrValue(t, s.MetricScores[ScoreCapRate]))
	assert.Equal(t, 3.0, ptrValue(t, s.MetricScores[ScoreYieldOnCost]))
	assert.Equal(t, 2.0, ptrValue(t, s.MetricScores[ScoreCashOnCash]))
	assert.Equal(t, 3.0, ptrValue(t, s.MetricScores[ScoreDSCR]))

	// Stabilized NOI drives cap rate when present.
	assert.InDelta(t, 0.11, ptrValue(t, got.Metrics.CapRateUsed), 1e-4)
	assert.InDelta(t, 0.09, ptrValue(t, got.Metrics.CapRateInPlace), 1e-4)
	assert.Equal(t, 1_100_000.0, ptrValue(t, got.Metrics.NOIUsed))
	assert.Equal(t, 6_500_000.0, ptrValue(t, got.Metrics.LoanAmount))
	assert.Equal(t, 3_800_000.0, ptrValue(t, got.Metrics.EquityInvested))
	assert.Equal(t, 25_000.0, ptrValue(t, got.Metrics.AnnualReserves))
	assert.Equal(t, 0.0848, ptrValue(t, got.Metrics.LoanConstant))
	assert.Equal(t, 1.5872, ptrValue(t, got.Metrics.DSCR))
	assert.Equal(t, 0.1385, ptrValue(t, got.Metrics.DebtYield))

	for _, k := range []string{
		"cap_rate_in_place", "cap_rate_stabilized", "cap_rate_used", "yield_on_cost",
		"yield_spread", "cash_on_cash", "dscr", "loan_constant", "debt_yield",
	} {
		assert.Contains(t, s.MetricValues, k)
		assert.NotNil(t, s.MetricValues[k], k)
	}
}

func TestCompute_EmptyInputs(t *testing.T) {
	got, err := Compute(Inputs{}, DefaultPlaybook())
	require.NoError(t, err)

	s := got.Scores
	assert.Nil(t, s.FinancialScore)
	assert.Nil(t, s.QualitativeScore)
	assert.Nil(t, s.OverallScore)
	assert.False(t, s.HardFilterFailed)
	assert.True(t, s.IsProvisional)
	assert.Equal(t, []string{
		KeyAssetCondition, KeyMarketDynamics, KeyNOIInPlace, KeyNOIStabilized,
		KeyPriceBasis, KeySquareFeet, KeyTenantCredit,
	}, s.MissingKeys)
	assert.Nil(t, got.Metrics.LoanAmount)
	assert.Nil(t, got.Metrics.TotalCost)
	assert.Nil(t, got.Metrics.LoanConstant)
}

func TestCompute_QualitativeOnlyIsNotPenalized(t *testing.T) {
	in := Inputs{
		TenantCreditScore:   numeric.Ptr(4),
		AssetConditionScore: numeric.Ptr(2),
		MarketDynamicsScore: numeric.Ptr(3),
	}
	got, err := Compute(in, DefaultPlaybook())
	require.NoError(t, err)

	s := got.Scores
	assert.True(t, s.IsProvisional)
	assert.Nil(t, s.FinancialScore)
	assert.Equal(t, 3.0, ptrValue(t, s.QualitativeScore))
	assert.Equal(t, *s.QualitativeScore, ptrValue(t, s.OverallScore))
	assert.False(t, s.HardFilterFailed)
	assert.Contains(t, s.MissingKeys, KeyPriceBasis)
	assert.Contains(t, s.MissingKeys, KeyNOIInPlace)
	assert.Contains(t, s.MissingKeys, KeyNOIStabilized)
}

func TestCompute_QualitativeScoresClamped(t *testing.T) {
	in := Inputs{
		TenantCreditScore:   numeric.Ptr(9),
		AssetConditionScore: numeric.Ptr(0),
		MarketDynamicsScore: numeric.Ptr(3),
	}
	got, err := Compute(in, DefaultPlaybook())
	require.NoError(t, err)

	assert.Equal(t, 5.0, ptrValue(t, got.Scores.MetricScores[KeyTenantCredit]))
	assert.Equal(t, 1.0, ptrValue(t, got.Scores.MetricScores[KeyAssetCondition]))
	assert.Equal(t, 3.0, ptrValue(t, got.Scores.QualitativeScore))
}

func TestCompute_HardFilters(t *testing.T) {
	base := func(noiInPlace, noiStabilized float64) Inputs {
		return Inputs{
			PriceBasis:          numeric.Ptr(10_000_000),
			TotalProjectCost:    numeric.Ptr(12_000_000),
			SquareFeet:          numeric.Ptr(100_000),
			NOIInPlace:          numeric.Ptr(noiInPlace),
			NOIStabilized:       numeric.Ptr(noiStabilized),
			TenantCreditScore:   numeric.Ptr(3),
			AssetConditionScore: numeric.Ptr(3),
			MarketDynamicsScore: numeric.Ptr(3),
		}
	}

	tests := []struct {
		name    string
		in      Inputs
		want    []string
		notWant []string
	}{
		{
			name:    "low in-place noi fails dscr only",
			in:      base(500_000, 1_500_000),
			want:    []string{scorer.ReasonDSCR},
			notWant: []string{scorer.ReasonCapRate, scorer.ReasonYieldSpread},
		},
		{
			name: "six percent cap rate",
			in:   base(1_500_000, 600_000),
			want: []string{scorer.ReasonCapRate},
		},
		{
			name:    "cap rate passes but spread is negative",
			in:      base(1_200_000, 800_000),
			want:    []string{scorer.ReasonYieldSpread},
			notWant: []string{scorer.ReasonCapRate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.in, DefaultPlaybook())
			require.NoError(t, err)

			s := got.Scores
			assert.True(t, s.HardFilterFailed)
			for _, r := range tt.want {
				assert.Contains(t, s.HardFilterReasons, r)
			}
			for _, r := range tt.notWant {
				assert.NotContains(t, s.HardFilterReasons, r)
			}
			// A failed filter is reported alongside the score, never in place of it.
			assert.NotNil(t, s.OverallScore)
		})
	}
}

func TestCompute_SynthesizesTotalCost(t *testing.T) {
	in := Inputs{PriceBasis: numeric.Ptr(1_000_000), NOIStabilized: numeric.Ptr(90_000)}
	got, err := Compute(in, DefaultPlaybook())
	require.NoError(t, err)

	// price + legal + title + diligence + debt fee on a 650k loan
	assert.Equal(t, 1_039_500.0, ptrValue(t, got.Metrics.TotalCost))
	assert.Equal(t, 389_500.0, ptrValue(t, got.Metrics.EquityInvested))
	assert.Equal(t, 0.09, ptrValue(t, got.Metrics.CapRateUsed))
	assert.Nil(t, got.Metrics.CapRateInPlace)
	assert.Nil(t, got.Metrics.DSCR, "no square feet means no reserves")
}

func TestCompute_CashOnCashRequiresPositiveEquity(t *testing.T) {
	in := completeInputs()
	in.TotalProjectCost = numeric.Ptr(5_000_000)

	got, err := Compute(in, DefaultPlaybook())
	require.NoError(t, err)
	assert.Less(t, ptrValue(t, got.Metrics.EquityInvested), 0.0)
	assert.Nil(t, got.Metrics.CashOnCash)
	assert.Nil(t, got.Scores.MetricScores[ScoreCashOnCash])
	assert.True(t, got.Scores.IsProvisional)
}

func TestCompute_ZeroPriceGuarded(t *testing.T) {
	in := completeInputs()
	in.PriceBasis = numeric.Ptr(0)

	got, err := Compute(in, DefaultPlaybook())
	require.NoError(t, err)
	assert.Nil(t, got.Metrics.CapRateUsed)
	assert.Nil(t, got.Metrics.DSCR)
	assert.Nil(t, got.Scores.MetricScores[ScoreCapRate])
}

func TestCompute_InvalidPlaybook(t *testing.T) {
	pb := DefaultPlaybook()
	pb.Debt.AmortYears = 0
	_, err := Compute(Inputs{}, pb)
	assert.ErrorIs(t, err, ErrInvalidAmortization)

	pb = DefaultPlaybook()
	pb.Bands.DSCR = []float64{1.5, 1.2}
	_, err = Compute(completeInputs(), pb)
	assert.ErrorIs(t, err, ErrInvalidPlaybook)

	pb = DefaultPlaybook()
	pb.Debt.LTV = 1.2
	_, err = Compute(completeInputs(), pb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ltv")
}

func TestCompute_DoesNotMutatePlaybook(t *testing.T) {
	pb := DefaultPlaybook()
	_, err := Compute(completeInputs(), pb)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaybook(), pb)
}
