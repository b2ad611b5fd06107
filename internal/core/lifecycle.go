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
)

// CreateBet opens a bet in a group. Only the group admin may create bets.
func (e *Engine) CreateBet(ctx context.Context, cmd *CreateBet) (*store.Commit, error) {
	platformAddr := ledger.PlatformAddress()
	betAddr := ledger.BetAddress(cmd.Group, cmd.BetID)
	profileAddr := ledger.UserProfileAddress(cmd.Creator)
	op := store.Op{Records: []ledger.Address{platformAddr, cmd.Group, betAddr, profileAddr}}

	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		now := tx.Op().Timestamp

		platform, err := loadPlatform(tx)
		if err != nil {
			return err
		}
		g, err := loadGroup(tx, cmd.Group)
		if err != nil {
			return err
		}
		if err := validation.CreatorAuthority(g, cmd.Creator); err != nil {
			return err
		}
		if err := validation.Identifier("bet id", cmd.BetID); err != nil {
			return err
		}
		if err := validation.OptionsAndOdds(cmd.Options, cmd.Odds); err != nil {
			return err
		}
		if err := validation.BetWindow(cmd.EndTime, now); err != nil {
			return fmt.Errorf("end time %d at %d: %w", cmd.EndTime, now, err)
		}

		profile, err := loadProfile(tx, profileAddr, cmd.Creator)
		if err != nil {
			return err
		}

		if exists, err := tx.Exists(betAddr); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("bet %q: %w", cmd.BetID, errs.ErrBetAlreadyExists)
		}

		bet := &state.Bet{
			ID:             cmd.BetID,
			Group:          cmd.Group,
			Creator:        cmd.Creator,
			Subject:        cmd.Subject,
			Description:    cmd.Description,
			Options:        append([]string(nil), cmd.Options...),
			Odds:           append([]uint16(nil), cmd.Odds...),
			MinStake:       cmd.MinStake,
			StakePerOption: make([]uint64, len(cmd.Options)),
			CreatedAt:      now,
			EndTime:        cmd.EndTime,
		}
		if err := tx.Create(betAddr, bet); err != nil {
			return err
		}

		g.ActiveBets.Add(betAddr)
		if err := tx.Put(cmd.Group, g); err != nil {
			return err
		}
		profile.ActiveBets.Add(betAddr)
		if err := tx.Put(profileAddr, profile); err != nil {
			return err
		}
		if err := platform.IncrementBets(); err != nil {
			return err
		}
		if err := tx.Put(platformAddr, platform); err != nil {
			return err
		}

		tx.Emit(&event.BetCreated{
			Bet:      betAddr,
			Group:    cmd.Group,
			BetID:    cmd.BetID,
			Subject:  cmd.Subject,
			Creator:  cmd.Creator,
			Options:  bet.Options,
			Odds:     bet.Odds,
			MinStake: cmd.MinStake,
			EndTime:  cmd.EndTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.BetsOpen.Inc()
	}
	e.logger.Info().
		Str("bet_id", cmd.BetID).
		Str("subject", cmd.Subject).
		Str("creator", cmd.Creator.String()).
		Int("options", len(cmd.Options)).
		Msg("bet created")
	return c, nil
}

// PlaceBet stakes a member's funds on one option of an open bet. The stake
// moves from the user's custody account to the treasury.
func (e *Engine) PlaceBet(ctx context.Context, cmd *PlaceBet) (*store.Commit, error) {
	betAddr := ledger.BetAddress(cmd.Group, cmd.BetID)
	userBetAddr := ledger.UserBetAddress(betAddr, cmd.User)
	profileAddr := ledger.UserProfileAddress(cmd.User)
	userAcct := ledger.NewUserAccountKey(cmd.User)
	op := store.Op{
		Records:  []ledger.Address{betAddr, userBetAddr, profileAddr},
		Reads:    []ledger.Address{ledger.PlatformAddress(), cmd.Group},
		Accounts: []ledger.AccountKey{userAcct},
	}

	var pool uint64
	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		now := tx.Op().Timestamp

		platform, err := loadPlatform(tx)
		if err != nil {
			return err
		}
		bet, err := loadBet(tx, betAddr, cmd.BetID)
		if err != nil {
			return err
		}
		g, err := loadGroup(tx, cmd.Group)
		if err != nil {
			return err
		}
		if err := validation.Membership(g, cmd.User); err != nil {
			return err
		}
		if err := validation.Placement(cmd.OptionIndex, cmd.Amount, bet, now); err != nil {
			return fmt.Errorf("bet %q: %w", cmd.BetID, err)
		}

		if exists, err := tx.Exists(userBetAddr); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("bet %q: %w", cmd.BetID, errs.ErrStakeAlreadyPlaced)
		}

		profile, err := loadProfile(tx, profileAddr, cmd.User)
		if err != nil {
			return err
		}
		treasury, err := platform.TreasuryAccount()
		if err != nil {
			return err
		}

		if err := e.gateway.Transfer(tx, userAcct, treasury, cmd.Amount,
			escrow.AsUser(cmd.User), ledger.JournalTypeStake); err != nil {
			return err
		}

		if err := bet.AddStake(cmd.OptionIndex, cmd.Amount); err != nil {
			return err
		}
		if err := tx.Put(betAddr, bet); err != nil {
			return err
		}
		pool = bet.TotalPool

		ub := &state.UserBet{
			User:        cmd.User,
			Bet:         betAddr,
			Amount:      cmd.Amount,
			OptionIndex: cmd.OptionIndex,
			PlacedAt:    now,
		}
		if err := tx.Create(userBetAddr, ub); err != nil {
			return err
		}

		profile.ActiveBets.Add(betAddr)
		if err := tx.Put(profileAddr, profile); err != nil {
			return err
		}

		tx.Emit(&event.StakePlaced{
			Bet:         betAddr,
			BetID:       cmd.BetID,
			User:        cmd.User,
			Amount:      cmd.Amount,
			OptionIndex: cmd.OptionIndex,
			TotalPool:   bet.TotalPool,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.StakedTotal.Add(float64(cmd.Amount))
	}
	e.logger.Info().
		Str("user", cmd.User.String()).
		Uint64("amount", cmd.Amount).
		Uint8("option", cmd.OptionIndex).
		Str("bet_id", cmd.BetID).
		Uint64("total_pool", pool).
		Msg("bet placed")
	return c, nil
}

// ResolveBet declares the winning option. Only the bet's creator may
// resolve it, and only once.
func (e *Engine) ResolveBet(ctx context.Context, cmd *ResolveBet) (*store.Commit, error) {
	betAddr := ledger.BetAddress(cmd.Group, cmd.BetID)
	op := store.Op{
		Records: []ledger.Address{betAddr, cmd.Group},
		Reads:   []ledger.Address{ledger.PlatformAddress()},
	}

	var odds uint16
	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		if _, err := loadPlatform(tx); err != nil {
			return err
		}
		bet, err := loadBet(tx, betAddr, cmd.BetID)
		if err != nil {
			return err
		}
		if err := validation.Resolution(bet, cmd.WinningOption, cmd.Resolver); err != nil {
			return fmt.Errorf("bet %q: %w", cmd.BetID, err)
		}

		bet.Resolve(cmd.WinningOption, cmd.ResolvedValue, tx.Op().Timestamp)
		if err := tx.Put(betAddr, bet); err != nil {
			return err
		}
		odds = bet.Odds[cmd.WinningOption]

		g, err := loadGroup(tx, cmd.Group)
		if err != nil {
			return err
		}
		if g.RetireBet(betAddr) {
			if err := tx.Put(cmd.Group, g); err != nil {
				return err
			}
		}

		tx.Emit(&event.BetResolved{
			Bet:           betAddr,
			BetID:         cmd.BetID,
			Resolver:      cmd.Resolver,
			WinningOption: cmd.WinningOption,
			ResolvedValue: cmd.ResolvedValue,
			TotalPool:     bet.TotalPool,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.BetsOpen.Dec()
	}
	e.logger.Info().
		Str("bet_id", cmd.BetID).
		Uint8("winning_option", cmd.WinningOption).
		Str("odds", fpmath.FormatOdds(odds)).
		Uint64("resolved_value", cmd.ResolvedValue).
		Msg("bet resolved")
	return c, nil
}

func loadGroup(tx *store.Tx, addr ledger.Address) (*state.Group, error) {
	var g state.Group
	if err := tx.Get(addr, &g); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, fmt.Errorf("group %s: %w", addr.Short(), errs.ErrGroupNotFound)
		}
		return nil, err
	}
	return &g, nil
}

func loadBet(tx *store.Tx, addr ledger.Address, betID string) (*state.Bet, error) {
	var b state.Bet
	if err := tx.Get(addr, &b); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, fmt.Errorf("bet %q: %w", betID, errs.ErrBetNotFound)
		}
		return nil, err
	}
	return &b, nil
}
