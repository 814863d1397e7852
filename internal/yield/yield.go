// Package yield handles the fixed-point representation of crop yields and
// hedge thresholds. The engine works on scaled integers; oracles and API
// clients speak decimal text such as "4.50" (tonnes per hectare).
package yield

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places carried by a fixed-point yield.
const Scale int32 = 2

var (
	ErrNegative    = errors.New("yield: value must be non-negative")
	ErrPrecision   = errors.New("yield: too many decimal places")
	ErrOutOfRange  = errors.New("yield: value out of range")
	ErrInvalidText = errors.New("yield: invalid decimal text")

	maxFixed = decimal.NewFromInt(math.MaxInt64)
)

// ToFixed converts a decimal yield into its scaled integer form.
// 4.5 → 450 at Scale 2.
func ToFixed(v decimal.Decimal) (int64, error) {
	if v.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegative, v)
	}
	scaled := v.Shift(Scale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s (max %d)", ErrPrecision, v, Scale)
	}
	if scaled.GreaterThan(maxFixed) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, v)
	}
	return scaled.IntPart(), nil
}

// Parse converts decimal text into a fixed-point yield.
func Parse(s string) (int64, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidText, s)
	}
	return ToFixed(v)
}

// FromFixed converts a scaled integer back to a decimal for display.
func FromFixed(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// Format renders a fixed-point yield with exactly Scale decimal places.
func Format(v int64) string {
	return FromFixed(v).StringFixed(Scale)
}
