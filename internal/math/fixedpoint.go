package math

import (
	"FluxLedger/internal/errs"
	"fmt"
	"math/bits"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int    // Number of decimal places
	Scale            uint64 // 10^DecimalPrecision
}

var (
	// OddsConfig is basis-100: 100 = 1.00x, 250 = 2.50x
	OddsConfig = DecimalConfig{DecimalPrecision: 2, Scale: 100}
	// FeeConfig is basis points: 10000 = 100%
	FeeConfig = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}
)

// MaxFeeBps is the largest accepted fee rate (100%).
const MaxFeeBps = 10_000

// CheckedAdd returns a + b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%d + %d: %w", a, b, errs.ErrArithmeticOverflow)
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%d - %d: %w", a, b, errs.ErrArithmeticOverflow)
	}
	return diff, nil
}

// CheckedMul returns a * b or ErrArithmeticOverflow when the 128-bit product
// does not fit in 64 bits.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%d * %d: %w", a, b, errs.ErrArithmeticOverflow)
	}
	return lo, nil
}

// MulDivFloor computes floor(a * b / d). The product must fit in 64 bits,
// matching the checked_mul/checked_div chain payouts have always used.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("divide by zero: %w", errs.ErrArithmeticOverflow)
	}
	product, err := CheckedMul(a, b)
	if err != nil {
		return 0, err
	}
	return product / d, nil
}

// Format renders a fixed-point value with the config's precision,
// e.g. Format(250, OddsConfig) == "2.50".
func Format(v uint64, cfg DecimalConfig) string {
	whole := v / cfg.Scale
	frac := v % cfg.Scale
	if cfg.DecimalPrecision == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%d.%0*d", whole, cfg.DecimalPrecision, frac)
}

// FormatOdds renders basis-100 odds as a multiplier ("2.50x").
func FormatOdds(odds uint16) string {
	return Format(uint64(odds), OddsConfig) + "x"
}

// FormatFee renders a basis-point fee as a percentage ("5.00%").
func FormatFee(feeBps uint16) string {
	return Format(uint64(feeBps), DecimalConfig{DecimalPrecision: 2, Scale: 100}) + "%"
}
