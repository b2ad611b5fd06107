package core

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	fpmath "FluxLedger/internal/math"
	"FluxLedger/internal/state"
	"FluxLedger/internal/validation"
	"encoding/json"
	"errors"
	"fmt"
)

// OutstandingWinnings sums the net payouts still claimable on resolved bets.
// Stakes whose payout would fail the pool check are left out; they can never
// be paid.
func (e *Engine) OutstandingWinnings() (uint64, error) {
	platform, err := e.Platform()
	if errors.Is(err, errs.ErrPlatformNotInitialized) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	// Collected first: Scan holds the store's read lock.
	var stakes []state.UserBet
	if err := e.store.Scan(state.RecordKindUserBet, func(_ ledger.Address, data []byte) error {
		var ub state.UserBet
		if err := json.Unmarshal(data, &ub); err != nil {
			return err
		}
		if !ub.Claimed {
			stakes = append(stakes, ub)
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("scan stakes: %w", err)
	}

	bets := make(map[ledger.Address]*state.Bet)
	var total uint64
	for i := range stakes {
		ub := &stakes[i]
		bet, ok := bets[ub.Bet]
		if !ok {
			bet = &state.Bet{}
			if _, err := e.store.Get(ub.Bet, bet); err != nil {
				return 0, fmt.Errorf("bet %s for stake of %s: %w", ub.Bet.Short(), ub.User, err)
			}
			bets[ub.Bet] = bet
		}
		if !bet.Resolved || validation.Claim(ub, bet) != nil {
			continue
		}

		odds, err := bet.WinningOdds()
		if err != nil {
			return 0, err
		}
		p, err := fpmath.CheckedPayout(ub.Amount, odds, bet.TotalPool, platform.FeeBps)
		if errors.Is(err, errs.ErrInsufficientFunds) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("bet %q: %w", bet.ID, err)
		}
		if total, err = fpmath.CheckedAdd(total, p.Net); err != nil {
			return 0, fmt.Errorf("outstanding winnings: %w", err)
		}
	}
	return total, nil
}

// CheckTreasuryCoverage reports the claimable winnings and whether the
// treasury holds enough to pay all of them. A shortfall wraps
// ErrInsufficientCustody.
func (e *Engine) CheckTreasuryCoverage() (uint64, error) {
	outstanding, err := e.OutstandingWinnings()
	if err != nil {
		return 0, err
	}
	return outstanding, e.store.ValidateTreasuryCovers(outstanding)
}
