// Package validation holds the side-effect-free checks every ledger
// operation runs before it mutates anything.
package validation

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	fpmath "FluxLedger/internal/math"
	"FluxLedger/internal/state"
	"fmt"

	"github.com/google/uuid"
)

// OptionsAndOdds checks the option list and its parallel odds list.
func OptionsAndOdds(options []string, odds []uint16) error {
	if len(options) != len(odds) {
		return fmt.Errorf("%d options, %d odds: %w", len(options), len(odds), errs.ErrOptionOddsMismatch)
	}
	if len(options) < state.MinOptions {
		return errs.ErrTooFewOptions
	}
	if len(options) > state.MaxOptions {
		return errs.ErrTooManyOptions
	}
	return nil
}

// BetWindow requires endTime to be strictly in the future.
func BetWindow(endTime, now int64) error {
	if endTime <= now {
		return fmt.Errorf("end time %d not after %d: %w", endTime, now, errs.ErrBetPeriodEnded)
	}
	return nil
}

func Placement(optionIndex uint8, amount uint64, bet *state.Bet, now int64) error {
	if bet.Resolved {
		return errs.ErrBetAlreadyResolved
	}
	if int(optionIndex) >= len(bet.Options) {
		return fmt.Errorf("option %d of %d: %w", optionIndex, len(bet.Options), errs.ErrInvalidOptionIndex)
	}
	if amount < bet.MinStake {
		return fmt.Errorf("amount %d below minimum %d: %w", amount, bet.MinStake, errs.ErrBetAmountBelowMinimum)
	}
	if now >= bet.EndTime {
		return errs.ErrBetPeriodEnded
	}
	return nil
}

// Resolution allows only the bet's creator to resolve, whatever their
// standing in the group.
func Resolution(bet *state.Bet, winningOption uint8, resolver uuid.UUID) error {
	if bet.Resolved {
		return errs.ErrBetAlreadyResolved
	}
	if int(winningOption) >= len(bet.Options) {
		return fmt.Errorf("option %d of %d: %w", winningOption, len(bet.Options), errs.ErrInvalidOptionIndex)
	}
	if resolver != bet.Creator {
		return errs.ErrUnauthorizedResolver
	}
	return nil
}

func Claim(userBet *state.UserBet, bet *state.Bet) error {
	if !bet.Resolved || bet.WinningOption == nil {
		return errs.ErrBetNotResolved
	}
	if userBet.Claimed {
		return fmt.Errorf("already claimed: %w", errs.ErrNoWinningsToClaim)
	}
	if userBet.OptionIndex != *bet.WinningOption {
		return fmt.Errorf("staked option %d, winner %d: %w", userBet.OptionIndex, *bet.WinningOption, errs.ErrNoWinningsToClaim)
	}
	return nil
}

func FeePercentage(feeBps uint16) error {
	if feeBps > fpmath.MaxFeeBps {
		return fmt.Errorf("fee %d bps: %w", feeBps, errs.ErrInvalidFeePercentage)
	}
	return nil
}

func Membership(group *state.Group, user uuid.UUID) error {
	if !group.IsMember(user) {
		return errs.ErrNotGroupMember
	}
	return nil
}

func CreatorAuthority(group *state.Group, creator uuid.UUID) error {
	if group.Admin != creator {
		return errs.ErrUnauthorizedBetCreator
	}
	return nil
}

// Identifier bounds strings that seed record addresses.
func Identifier(field, s string) error {
	if len(s) == 0 || len(s) > ledger.MaxSeedLen {
		return fmt.Errorf("%s %q (%d bytes): %w", field, s, len(s), errs.ErrInvalidIdentifier)
	}
	return nil
}
