package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
)

// Monetary quantities are fixed-point integers carried as big.Int base units.
// Native and token amounts use 18 fractional digits; oracle prices use 8.
// All intermediate multiplication/division rounds toward zero.
var (
	// UnitScale is 10^18, the base-unit scale for native and token amounts.
	UnitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// PriceScale is 10^8, the oracle price scale.
	PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil)
)

var (
	ErrNegative = errors.New("negative amount")
	ErrOverflow = errors.New("arithmetic overflow")
)

// MulDiv computes floor(a * b / den). den must be positive.
func MulDiv(a, b, den *big.Int) *big.Int {
	if den.Sign() <= 0 {
		panic("fixedpoint: non-positive denominator")
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// Fraction computes floor(a * num / den), the standard fee/LTV application.
func Fraction(a *big.Int, num, den int64) *big.Int {
	return MulDiv(a, big.NewInt(num), big.NewInt(den))
}

// Parse decodes a non-negative base-unit amount from its decimal string form.
// Used at every external boundary (HTTP, NATS, Postgres) so that malformed or
// negative quantities are rejected before they reach the engine.
func Parse(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrOverflow)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrNegative)
	}
	return v, nil
}

// MustParse is Parse for trusted constants; panics on malformed input.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders an amount in base units. Nil renders as "0".
func String(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Clone returns an independent copy; nil maps to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ToFloat converts an amount to float64 for metrics gauges only. Never use
// the result for value computations.
func ToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
