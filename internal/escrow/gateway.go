// Package escrow moves custody balances between accounts inside a store unit
// of work. It is the only place that checks who may spend from an account.
package escrow

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/store"
	"crypto/hmac"
	"fmt"

	"github.com/google/uuid"
)

// Gateway authorizes custody transfers and stages them on a store.Tx.
type Gateway struct {
	expected Capability
}

// NewGateway verifies platform capabilities against signingKey.
func NewGateway(signingKey []byte) *Gateway {
	return &Gateway{expected: MintCapability(signingKey)}
}

// Transfer stages a move of amount from one custody account to another.
// User accounts move only under that user's authority and system accounts
// only under a valid platform capability. Zero amounts do nothing.
func (g *Gateway) Transfer(tx *store.Tx, from, to ledger.AccountKey, amount uint64, auth Authority, jt ledger.JournalType) error {
	if amount == 0 {
		return nil
	}
	if err := g.authorize(from, auth); err != nil {
		return err
	}
	if to.IsExternal() {
		return fmt.Errorf("transfer to %s: %w", to, errs.ErrUnauthorizedTransfer)
	}
	if err := ledger.ValidateSufficient(from, tx.Balance(from), amount); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return tx.StageTransfer(to, from, amount, jt)
}

// Deposit credits a user's custody account with funds entering the ledger.
func (g *Gateway) Deposit(tx *store.Tx, user uuid.UUID, amount uint64) error {
	return tx.StageTransfer(ledger.NewUserAccountKey(user),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits), amount, ledger.JournalTypeDeposit)
}

// Withdraw moves funds out of the ledger from a user's custody account.
func (g *Gateway) Withdraw(tx *store.Tx, user uuid.UUID, amount uint64, auth Authority) error {
	if amount == 0 {
		return nil
	}
	from := ledger.NewUserAccountKey(user)
	if err := g.authorize(from, auth); err != nil {
		return err
	}
	if err := ledger.ValidateSufficient(from, tx.Balance(from), amount); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return tx.StageTransfer(ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals),
		from, amount, ledger.JournalTypeWithdrawal)
}

func (g *Gateway) authorize(from ledger.AccountKey, auth Authority) error {
	switch from.Scope {
	case ledger.AccountScopeUser:
		owner, _ := from.UserID()
		if auth.capability == nil && auth.user == owner {
			return nil
		}
	case ledger.AccountScopeSystem:
		if auth.capability != nil && hmac.Equal(auth.capability[:], g.expected[:]) {
			return nil
		}
	}
	return fmt.Errorf("%s spending from %s: %w", auth, from, errs.ErrUnauthorizedTransfer)
}
