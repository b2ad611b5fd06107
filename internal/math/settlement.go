package math

import (
	"FluxLedger/internal/errs"
	"fmt"
)

// Payout is the breakdown of a winning claim.
type Payout struct {
	Gross uint64 // stake * odds / 100
	Fee   uint64 // gross * feeBps / 10000
	Net   uint64 // gross - fee
}

// ComputePayout applies odds and the platform fee to a stake. Every division
// truncates, rounding in favour of the house.
func ComputePayout(stake uint64, odds uint16, feeBps uint16) (Payout, error) {
	gross, err := MulDivFloor(stake, uint64(odds), OddsConfig.Scale)
	if err != nil {
		return Payout{}, fmt.Errorf("raw winnings: %w", err)
	}

	fee, err := MulDivFloor(gross, uint64(feeBps), FeeConfig.Scale)
	if err != nil {
		return Payout{}, fmt.Errorf("platform fee: %w", err)
	}

	net, err := CheckedSub(gross, fee)
	if err != nil {
		return Payout{}, fmt.Errorf("net winnings: %w", err)
	}

	return Payout{Gross: gross, Fee: fee, Net: net}, nil
}

// CheckedPayout computes the payout for a winning stake and fails with
// ErrInsufficientFunds when its net exceeds the bet's total pool.
//
// The pool check is against the whole pool, not what remains after earlier
// claims on the same bet.
func CheckedPayout(stake uint64, odds uint16, totalPool uint64, feeBps uint16) (Payout, error) {
	p, err := ComputePayout(stake, odds, feeBps)
	if err != nil {
		return Payout{}, err
	}

	if p.Net > totalPool {
		return Payout{}, fmt.Errorf("payout %d exceeds pool %d: %w", p.Net, totalPool, errs.ErrInsufficientFunds)
	}

	return p, nil
}

// CalculateWinnings returns the fee-adjusted payout for a winning stake,
// subject to the same pool check as CheckedPayout.
func CalculateWinnings(stake uint64, odds uint16, totalPool uint64, feeBps uint16) (uint64, error) {
	p, err := CheckedPayout(stake, odds, totalPool, feeBps)
	if err != nil {
		return 0, err
	}
	return p.Net, nil
}
