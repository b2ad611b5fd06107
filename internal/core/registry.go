package core

import (
	"FluxLedger/internal/errs"
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

// InitializePlatform creates the global platform record. It succeeds once.
func (e *Engine) InitializePlatform(ctx context.Context, cmd *InitializePlatform) (*store.Commit, error) {
	if err := validation.FeePercentage(cmd.FeeBps); err != nil {
		return nil, fmt.Errorf("fee %d bps: %w", cmd.FeeBps, err)
	}

	addr := ledger.PlatformAddress()
	op := store.Op{Records: []ledger.Address{addr}}

	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		p := &state.Platform{
			Admin:         cmd.Admin,
			FeeBps:        cmd.FeeBps,
			Treasury:      ledger.TreasuryAccountKey(),
			InitializedAt: tx.Op().Timestamp,
		}
		if err := tx.Create(addr, p); err != nil {
			if errors.Is(err, errs.ErrRecordExists) {
				return errs.ErrPlatformAlreadyInitialized
			}
			return err
		}
		tx.Emit(&event.PlatformInitialized{Admin: p.Admin, FeeBps: p.FeeBps, Treasury: p.Treasury})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("admin", cmd.Admin.String()).
		Str("fee", fpmath.FormatFee(cmd.FeeBps)).
		Msg("platform initialized")
	return c, nil
}

// loadPlatform reads the platform record, failing if it was never created.
func loadPlatform(tx *store.Tx) (*state.Platform, error) {
	var p state.Platform
	if err := tx.Get(ledger.PlatformAddress(), &p); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, errs.ErrPlatformNotInitialized
		}
		return nil, err
	}
	return &p, nil
}

// loadOrCreateProfile returns the user's profile, creating it in memory if
// it does not exist yet. The caller stages it with Create when created is
// true and counts the new user on the platform.
func loadOrCreateProfile(tx *store.Tx, user uuid.UUID) (profile *state.UserProfile, created bool, err error) {
	addr := ledger.UserProfileAddress(user)
	var p state.UserProfile
	if err := tx.Get(addr, &p); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return state.NewUserProfile(user, tx.Op().Timestamp), true, nil
		}
		return nil, false, err
	}
	return &p, false, nil
}

// saveProfile stages a profile returned by loadOrCreateProfile and counts
// a new user on the platform.
func saveProfile(tx *store.Tx, platform *state.Platform, profile *state.UserProfile, created bool) error {
	addr := ledger.UserProfileAddress(profile.User)
	if !created {
		return tx.Put(addr, profile)
	}
	if err := platform.IncrementUsers(); err != nil {
		return err
	}
	return tx.Create(addr, profile)
}
