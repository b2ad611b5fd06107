package ledger

import (
	"FluxLedger/internal/errs"
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateConservation verifies that value held in custody equals value
// deposited minus value withdrawn.
func (v *InvariantValidator) ValidateConservation() error {
	held, err := v.tracker.Holdings()
	if err != nil {
		return fmt.Errorf("sum holdings: %w", err)
	}

	in := v.tracker.GetBalance(NewExternalAccountKey(SubTypeExternalDeposits))
	out := v.tracker.GetBalance(NewExternalAccountKey(SubTypeExternalWithdrawals))
	if out > in || held != in-out {
		return fmt.Errorf("custody not conserved: held=%d deposited=%d withdrawn=%d", held, in, out)
	}

	return nil
}

// ValidateTreasuryCovers verifies the treasury holds at least the given
// outstanding liability.
func (v *InvariantValidator) ValidateTreasuryCovers(outstanding uint64) error {
	if have := v.tracker.GetTreasuryBalance(); have < outstanding {
		return fmt.Errorf("treasury holds %d, owes up to %d: %w", have, outstanding, errs.ErrInsufficientCustody)
	}
	return nil
}
