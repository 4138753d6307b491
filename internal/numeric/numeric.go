// Package numeric provides nil-propagating helpers for optional float values.
//
// A nil *float64 means "unknown". Every helper returns nil when any operand
// is unknown, so missing data never turns into a silent zero.
package numeric

import "math"

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 {
	return &v
}

// Value returns *p, or 0 when p is nil. Use only for display.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Coalesce returns the first non-nil value.
func Coalesce(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// SafeDiv returns num/den, or nil when either side is unknown or den is zero.
func SafeDiv(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	return Ptr(*num / *den)
}

// Add returns a+b when both are known.
func Add(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return Ptr(*a + *b)
}

// Sub returns a-b when both are known.
func Sub(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return Ptr(*a - *b)
}

// Mul returns a*b when both are known.
func Mul(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return Ptr(*a * *b)
}

// Scale returns a*k when a is known.
func Scale(a *float64, k float64) *float64 {
	if a == nil {
		return nil
	}
	return Ptr(*a * k)
}

// AvgPresent averages the known values and ignores unknown ones.
// Returns nil when nothing is known.
func AvgPresent(vals ...*float64) *float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	return Ptr(sum / float64(n))
}

// Round rounds v to the given number of decimal places (half away from zero).
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// RoundPtr rounds a known value and passes nil through.
func RoundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	return Ptr(Round(*v, places))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
