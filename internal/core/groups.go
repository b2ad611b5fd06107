package core

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/event"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/state"
	"FluxLedger/internal/store"
	"FluxLedger/internal/validation"
	"context"
	"fmt"
)

// CreateGroup opens a group with the caller as admin and first member.
func (e *Engine) CreateGroup(ctx context.Context, cmd *CreateGroup) (*store.Commit, error) {
	if err := validation.Identifier("group name", cmd.Name); err != nil {
		return nil, err
	}

	platformAddr := ledger.PlatformAddress()
	groupAddr := ledger.GroupAddress(cmd.Admin, cmd.Name)
	op := store.Op{Records: []ledger.Address{
		platformAddr,
		groupAddr,
		ledger.UserProfileAddress(cmd.Admin),
	}}

	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		platform, err := loadPlatform(tx)
		if err != nil {
			return err
		}
		if exists, err := tx.Exists(groupAddr); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("group %q: %w", cmd.Name, errs.ErrGroupAlreadyExists)
		}

		now := tx.Op().Timestamp
		g := &state.Group{
			Name:        cmd.Name,
			Description: cmd.Description,
			Admin:       cmd.Admin,
			CreatedAt:   now,
		}
		g.Members.Add(cmd.Admin)
		if err := tx.Create(groupAddr, g); err != nil {
			return err
		}

		profile, created, err := loadOrCreateProfile(tx, cmd.Admin)
		if err != nil {
			return err
		}
		profile.Groups.Add(groupAddr)
		if err := saveProfile(tx, platform, profile, created); err != nil {
			return err
		}

		if err := platform.IncrementGroups(); err != nil {
			return err
		}
		if err := tx.Put(platformAddr, platform); err != nil {
			return err
		}

		tx.Emit(&event.GroupCreated{Group: groupAddr, Name: g.Name, Description: g.Description, Admin: g.Admin})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("group", cmd.Name).
		Str("admin", cmd.Admin.String()).
		Msg("group created")
	return c, nil
}

// JoinGroup adds the caller to a group's roster.
func (e *Engine) JoinGroup(ctx context.Context, cmd *JoinGroup) (*store.Commit, error) {
	platformAddr := ledger.PlatformAddress()
	op := store.Op{Records: []ledger.Address{
		platformAddr,
		cmd.Group,
		ledger.UserProfileAddress(cmd.User),
	}}

	var groupName string
	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		platform, err := loadPlatform(tx)
		if err != nil {
			return err
		}

		g, err := loadGroup(tx, cmd.Group)
		if err != nil {
			return err
		}
		if g.IsMember(cmd.User) {
			return fmt.Errorf("group %q: %w", g.Name, errs.ErrAlreadyMember)
		}
		g.Members.Add(cmd.User)
		if err := tx.Put(cmd.Group, g); err != nil {
			return err
		}
		groupName = g.Name

		profile, created, err := loadOrCreateProfile(tx, cmd.User)
		if err != nil {
			return err
		}
		profile.Groups.Add(cmd.Group)
		if err := saveProfile(tx, platform, profile, created); err != nil {
			return err
		}
		if created {
			if err := tx.Put(platformAddr, platform); err != nil {
				return err
			}
		}

		tx.Emit(&event.MemberJoined{Group: cmd.Group, User: cmd.User, ProfileCreated: created})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("user", cmd.User.String()).
		Str("group", groupName).
		Msg("user joined group")
	return c, nil
}
