// Package finance holds underwriting math used alongside screening: discounted
// cash flow, leverage ratios and GP/LP waterfall splits. Money that is
// distributed or quoted as a payment is computed with shopspring/decimal.
package finance

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/numeric"
)

// IRR search bracket and stopping rules.
const (
	irrLow       = -0.9999
	irrHigh      = 10.0
	irrMaxIter   = 100
	irrTolerance = 1e-6
)

var (
	twelve  = decimal.NewFromInt(12)
	one     = decimal.NewFromInt(1)
	centsDP = int32(2)
)

// NPV discounts flows at rate. flows[0] is undiscounted.
func NPV(rate float64, flows []float64) float64 {
	var total float64
	for i, cf := range flows {
		total += cf / math.Pow(1+rate, float64(i))
	}
	return total
}

// IRR finds the rate that zeroes NPV by bisection over [-0.9999, 10].
// ok is false when the flows never change sign or the bracket holds no root.
func IRR(flows []float64) (rate float64, ok bool) {
	if !hasSignChange(flows) {
		return 0, false
	}

	low, high := irrLow, irrHigh
	npvLow, npvHigh := NPV(low, flows), NPV(high, flows)
	if npvLow == 0 {
		return low, true
	}
	if npvHigh == 0 {
		return high, true
	}
	if npvLow*npvHigh > 0 {
		return 0, false
	}

	var mid float64
	for range irrMaxIter {
		mid = (low + high) / 2
		npvMid := NPV(mid, flows)
		if math.Abs(npvMid) < irrTolerance {
			return mid, true
		}
		if npvLow*npvMid < 0 {
			high = mid
		} else {
			low, npvLow = mid, npvMid
		}
	}
	return mid, true
}

func hasSignChange(flows []float64) bool {
	var pos, neg bool
	for _, cf := range flows {
		switch {
		case cf > 0:
			pos = true
		case cf < 0:
			neg = true
		}
	}
	return pos && neg
}

// EquityMultiple returns distributions / equity, or 0 when no equity was invested.
func EquityMultiple(distributions, equity decimal.Decimal) float64 {
	if equity.IsZero() {
		return 0
	}
	return distributions.Div(equity).InexactFloat64()
}

// DebtYield is NOI over the loan amount. Unknown inputs or a zero loan yield nil.
func DebtYield(noi, loan *float64) *float64 {
	return numeric.SafeDiv(noi, loan)
}

// LoanToValue is the loan amount over property value.
func LoanToValue(loan, value *float64) *float64 {
	return numeric.SafeDiv(loan, value)
}

// MortgagePayment returns the fully amortizing monthly payment rounded to cents.
func MortgagePayment(principal decimal.Decimal, annualRate float64, years int) (decimal.Decimal, error) {
	if years <= 0 {
		return decimal.Zero, eris.Errorf("finance: loan term must be positive, got %d years", years)
	}
	periods := int32(years * 12)
	monthly := decimal.NewFromFloat(annualRate).Div(twelve)
	if monthly.IsZero() {
		return principal.Div(decimal.NewFromInt32(periods)).Round(centsDP), nil
	}

	growth, err := one.Add(monthly).PowInt32(periods)
	if err != nil {
		return decimal.Zero, eris.Wrap(err, "finance: compound monthly rate")
	}
	payment := principal.Mul(monthly.Mul(growth)).Div(growth.Sub(one))
	return payment.Round(centsDP), nil
}

// PropertyValue capitalizes NOI at capRate, rounded to cents. A zero cap rate
// values the property at zero.
func PropertyValue(noi decimal.Decimal, capRate float64) decimal.Decimal {
	if capRate == 0 {
		return decimal.Zero
	}
	return noi.Div(decimal.NewFromFloat(capRate)).Round(centsDP)
}

// EffectiveGrossIncome applies vacancy and collection loss to potential gross income.
func EffectiveGrossIncome(potential decimal.Decimal, vacancyRate, collectionLoss float64) decimal.Decimal {
	loss := decimal.NewFromFloat(vacancyRate).Add(decimal.NewFromFloat(collectionLoss))
	return potential.Mul(one.Sub(loss))
}

// NetOperatingIncome is EGI less operating expenses.
func NetOperatingIncome(egi, opex decimal.Decimal) decimal.Decimal {
	return egi.Sub(opex)
}

// WaterfallTier is one step of a GP/LP distribution. A nil HurdleRate sends
// everything that reaches the tier through its split.
type WaterfallTier struct {
	HurdleRate *float64 `json:"hurdle_rate,omitempty" yaml:"hurdle_rate"`
	GPShare    float64  `json:"gp_share" yaml:"gp_share"`
	LPShare    float64  `json:"lp_share" yaml:"lp_share"`
}

// Distribution is the result of running cash through a waterfall.
type Distribution struct {
	GP    decimal.Decimal `json:"gp_distribution"`
	LP    decimal.Decimal `json:"lp_distribution"`
	Total decimal.Decimal `json:"total_distributed"`
}

// Waterfall distributes cash through tiers in order. A hurdle tier only
// absorbs the amount still needed to bring cumulative returns up to
// equity * hurdle; once that target is met it takes everything remaining.
func Waterfall(cash decimal.Decimal, tiers []WaterfallTier, cumulative, equity decimal.Decimal) Distribution {
	gp, lp := decimal.Zero, decimal.Zero
	remaining := cash

	for _, tier := range tiers {
		if !remaining.IsPositive() {
			break
		}

		amount := remaining
		if tier.HurdleRate != nil && equity.IsPositive() {
			target := equity.Mul(decimal.NewFromFloat(*tier.HurdleRate))
			if cumulative.LessThan(target) {
				amount = decimal.Min(remaining, target.Sub(cumulative))
			}
		}

		gp = gp.Add(amount.Mul(decimal.NewFromFloat(tier.GPShare)))
		lp = lp.Add(amount.Mul(decimal.NewFromFloat(tier.LPShare)))
		remaining = remaining.Sub(amount)
	}

	return Distribution{GP: gp, LP: lp, Total: gp.Add(lp)}
}
