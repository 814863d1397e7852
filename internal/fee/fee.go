// Package fee converts payout amounts into platform fees.
package fee

import (
	"github.com/shopspring/decimal"
)

// DefaultPermille is the platform fee rate: 5 per 1000 (0.5%).
const DefaultPermille = 5

var thousand = decimal.NewFromInt(1000)

// Calculator computes fees at a fixed per-mille rate. It is stateless and
// safe for concurrent use.
type Calculator struct {
	Permille int64
}

// NewCalculator returns a calculator for the given rate. A non-positive
// rate falls back to DefaultPermille.
func NewCalculator(permille int64) Calculator {
	if permille <= 0 {
		permille = DefaultPermille
	}
	return Calculator{Permille: permille}
}

// Fee returns floor(amount * permille / 1000), truncated toward zero.
// The product is formed in decimal so it cannot overflow int64.
func (c Calculator) Fee(amount int64) int64 {
	if amount == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(c.Permille)).
		Div(thousand).
		Truncate(0).
		IntPart()
}
