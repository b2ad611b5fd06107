package core

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/escrow"
	"FluxLedger/internal/event"
	"FluxLedger/internal/ledger"
	fpmath "FluxLedger/internal/math"
	"FluxLedger/internal/state"
	"FluxLedger/internal/store"
	"FluxLedger/internal/validation"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ClaimWinnings pays a winning stake out of the treasury. Each stake can be
// claimed once.
//
// The payout is checked against the bet's whole pool, not what is left of it
// after earlier claims on the same bet.
func (e *Engine) ClaimWinnings(ctx context.Context, cmd *ClaimWinnings) (*store.Commit, error) {
	betAddr := ledger.BetAddress(cmd.Group, cmd.BetID)
	userBetAddr := ledger.UserBetAddress(betAddr, cmd.User)
	profileAddr := ledger.UserProfileAddress(cmd.User)
	treasury := ledger.TreasuryAccountKey()

	// A resolved bet never changes again, so it is read without a lock and
	// claims on the same bet only serialize on the treasury.
	op := store.Op{
		Records:  []ledger.Address{userBetAddr, profileAddr},
		Reads:    []ledger.Address{ledger.PlatformAddress(), betAddr},
		Accounts: []ledger.AccountKey{treasury},
	}

	var payout fpmath.Payout
	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		now := tx.Op().Timestamp

		platform, err := loadPlatform(tx)
		if err != nil {
			return err
		}
		if _, err := platform.TreasuryAccount(); err != nil {
			return err
		}
		bet, err := loadBet(tx, betAddr, cmd.BetID)
		if err != nil {
			return err
		}
		if !bet.Resolved {
			return fmt.Errorf("bet %q: %w", cmd.BetID, errs.ErrBetNotResolved)
		}

		ub, err := loadUserBet(tx, userBetAddr, cmd.BetID, cmd.User)
		if err != nil {
			return err
		}
		if err := validation.Claim(ub, bet); err != nil {
			return fmt.Errorf("bet %q: %w", cmd.BetID, err)
		}

		odds, err := bet.WinningOdds()
		if err != nil {
			return err
		}
		if payout, err = fpmath.CheckedPayout(ub.Amount, odds, bet.TotalPool, platform.FeeBps); err != nil {
			return fmt.Errorf("bet %q: %w", cmd.BetID, err)
		}
		net := payout.Net

		if err := e.gateway.Transfer(tx, treasury, ledger.NewUserAccountKey(cmd.User), net,
			e.platformAuthority(), ledger.JournalTypePayout); err != nil {
			return err
		}

		ub.MarkClaimed(net, now)
		if err := tx.Put(userBetAddr, ub); err != nil {
			return err
		}

		profile, err := loadProfile(tx, profileAddr, cmd.User)
		if err != nil {
			return err
		}
		if err := profile.AddWinnings(net); err != nil {
			return err
		}
		profile.RetireBet(betAddr)
		if err := tx.Put(profileAddr, profile); err != nil {
			return err
		}

		tx.Emit(&event.WinningsClaimed{
			Bet:   betAddr,
			BetID: cmd.BetID,
			User:  cmd.User,
			Gross: payout.Gross,
			Fee:   payout.Fee,
			Net:   net,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PayoutsTotal.Add(float64(payout.Net))
		e.metrics.FeesRetained.Add(float64(payout.Fee))
	}
	e.logger.Info().
		Str("user", cmd.User.String()).
		Uint64("winnings", payout.Net).
		Uint64("fee", payout.Fee).
		Str("bet_id", cmd.BetID).
		Msg("winnings claimed")
	return c, nil
}

// platformAuthority mints the capability that lets payouts leave the
// treasury. The signing key never leaves the engine.
func (e *Engine) platformAuthority() escrow.Authority {
	return escrow.AsPlatform(escrow.MintCapability(e.signingKey))
}

func loadUserBet(tx *store.Tx, addr ledger.Address, betID string, user uuid.UUID) (*state.UserBet, error) {
	var ub state.UserBet
	if err := tx.Get(addr, &ub); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s on bet %q: %w", user, betID, errs.ErrStakeNotFound)
		}
		return nil, err
	}
	return &ub, nil
}

func loadProfile(tx *store.Tx, addr ledger.Address, user uuid.UUID) (*state.UserProfile, error) {
	var p state.UserProfile
	if err := tx.Get(addr, &p); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", user, errs.ErrProfileNotFound)
		}
		return nil, err
	}
	return &p, nil
}
