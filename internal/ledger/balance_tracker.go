package ledger

import (
	"FluxLedger/internal/errs"
	fpmath "FluxLedger/internal/math"
	"fmt"
)

// BalanceTracker maintains in-memory custody balances. It is not safe for
// concurrent use; the store serializes access.
type BalanceTracker struct {
	balances map[AccountKey]uint64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]uint64),
	}
}

// Preview returns the post-batch balances of every account the batch touches
// without applying anything. base supplies starting balances; nil means the
// tracker's own.
func (bt *BalanceTracker) Preview(batch *Batch, base map[AccountKey]uint64) (map[AccountKey]uint64, error) {
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	next := make(map[AccountKey]uint64, 2*len(batch.Journals))
	current := func(k AccountKey) uint64 {
		if v, ok := next[k]; ok {
			return v
		}
		if base != nil {
			if v, ok := base[k]; ok {
				return v
			}
		}
		return bt.balances[k]
	}

	for _, j := range batch.Journals {
		// External accounts count value crossing the boundary, so both legs
		// of a boundary transfer grow.
		if j.CreditAccount.IsExternal() {
			v, err := fpmath.CheckedAdd(current(j.CreditAccount), j.Amount)
			if err != nil {
				return nil, err
			}
			next[j.CreditAccount] = v
		} else {
			have := current(j.CreditAccount)
			if err := ValidateSufficient(j.CreditAccount, have, j.Amount); err != nil {
				return nil, err
			}
			next[j.CreditAccount] = have - j.Amount
		}

		v, err := fpmath.CheckedAdd(current(j.DebitAccount), j.Amount)
		if err != nil {
			return nil, err
		}
		next[j.DebitAccount] = v
	}

	return next, nil
}

// ApplyBatch applies all journals in a batch, or none of them, and returns
// the post-batch balances of the accounts it touched.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) (map[AccountKey]uint64, error) {
	next, err := bt.Preview(batch, nil)
	if err != nil {
		return nil, err
	}
	bt.SetBalances(next)
	return next, nil
}

// SetBalances overwrites balances, as computed by Preview or loaded from
// a snapshot.
func (bt *BalanceTracker) SetBalances(balances map[AccountKey]uint64) {
	for k, v := range balances {
		bt.balances[k] = v
	}
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) uint64 {
	return bt.balances[key]
}

// GetTreasuryBalance returns the pooled stakes held by the platform
func (bt *BalanceTracker) GetTreasuryBalance() uint64 {
	return bt.GetBalance(TreasuryAccountKey())
}

// ValidateSufficient checks that an account holding have can cover an
// outgoing amount.
func ValidateSufficient(key AccountKey, have, required uint64) error {
	if have < required {
		return fmt.Errorf("%s: have=%d, need=%d: %w", key, have, required, errs.ErrInsufficientCustody)
	}
	return nil
}

// Holdings sums every non-external balance.
func (bt *BalanceTracker) Holdings() (uint64, error) {
	var total uint64
	for key, balance := range bt.balances {
		if key.IsExternal() {
			continue
		}
		var err error
		if total, err = fpmath.CheckedAdd(total, balance); err != nil {
			return 0, err
		}
	}
	return total, nil
}
