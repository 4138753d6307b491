package screening

import (
	"math"

	"github.com/rotisserie/eris"
)

// LoanConstant returns annual debt service per dollar of principal for a
// fully amortizing loan. A zero or negative rate falls back to straight-line
// principal repayment (1/amortYears).
func LoanConstant(annualRate float64, amortYears int) (float64, error) {
	if amortYears <= 0 {
		return 0, eris.Wrapf(ErrInvalidAmortization, "screening: loan constant for amort_years=%d", amortYears)
	}
	if annualRate <= 0 {
		return 1 / float64(amortYears), nil
	}

	monthly := annualRate / 12
	growth := math.Pow(1+monthly, float64(amortYears*12))
	return monthly * growth / (growth - 1) * 12, nil
}
