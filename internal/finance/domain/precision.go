package finance

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// divisionEpsilon is the smallest denominator magnitude SafeDivide will divide by.
	divisionEpsilon = 1e-10
	// maxSafeInteger is the largest integer a float64 holds exactly (2^53).
	maxSafeInteger = 1 << 53
	maxDecimals    = 15
)

// BankersRounding rounds value half-to-even at the given number of decimals.
func BankersRounding(value float64, decimals int) (float64, error) {
	if !isFinite(value) {
		return 0, ErrNonFinite
	}
	decimals = clampDecimals(decimals)

	scaled := math.Abs(value) * math.Pow10(decimals)
	if math.IsInf(scaled, 0) || scaled > maxSafeInteger {
		return 0, ErrRoundingOverflow
	}

	rounded, _ := decimal.NewFromFloat(value).RoundBank(int32(decimals)).Float64()
	if rounded == 0 {
		// drop negative zero
		return 0, nil
	}
	return rounded, nil
}

// SafeDivide divides numerator by denominator and rounds the quotient.
// It returns defaultValue instead of failing on non-finite operands,
// near-zero denominators or overflow.
func SafeDivide(numerator, denominator, defaultValue float64, decimals int) float64 {
	if !isFinite(numerator) || !isFinite(denominator) {
		return defaultValue
	}
	if math.Abs(denominator) < divisionEpsilon {
		return defaultValue
	}
	quotient := numerator / denominator
	if !isFinite(quotient) {
		return defaultValue
	}
	rounded, err := BankersRounding(quotient, decimals)
	if err != nil {
		return defaultValue
	}
	return rounded
}

// RelativeError reports |exact-rounded|/|exact|, or 0 when exact is zero.
func RelativeError(exact, rounded float64) float64 {
	if !isFinite(exact) || !isFinite(rounded) || exact == 0 {
		return 0
	}
	return math.Abs(exact-rounded) / math.Abs(exact)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampDecimals(decimals int) int {
	if decimals < 0 {
		return 0
	}
	if decimals > maxDecimals {
		return maxDecimals
	}
	return decimals
}
