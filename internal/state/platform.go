package state

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	fpmath "FluxLedger/internal/math"
	"fmt"

	"github.com/google/uuid"
)

// Platform is the single global configuration record.
type Platform struct {
	Admin         uuid.UUID         `json:"admin"`
	FeeBps        uint16            `json:"fee_bps"` // 10000 = 100%
	Treasury      ledger.AccountKey `json:"treasury"`
	TotalBets     uint64            `json:"total_bets"`
	TotalUsers    uint64            `json:"total_users"`
	TotalGroups   uint64            `json:"total_groups"`
	InitializedAt int64             `json:"initialized_at"`
}

// TreasuryAccount returns the custody account stakes are pooled in. It fails
// if the record names any account other than the ledger treasury, which is
// the one account operations declare and lock.
func (p *Platform) TreasuryAccount() (ledger.AccountKey, error) {
	if want := ledger.TreasuryAccountKey(); p.Treasury != want {
		return ledger.AccountKey{}, fmt.Errorf("platform names %s, ledger uses %s: %w", p.Treasury, want, errs.ErrTreasuryMismatch)
	}
	return p.Treasury, nil
}

func (p *Platform) IncrementBets() error {
	return increment(&p.TotalBets, "total_bets")
}

func (p *Platform) IncrementUsers() error {
	return increment(&p.TotalUsers, "total_users")
}

func (p *Platform) IncrementGroups() error {
	return increment(&p.TotalGroups, "total_groups")
}

func increment(counter *uint64, name string) error {
	v, err := fpmath.CheckedAdd(*counter, 1)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*counter = v
	return nil
}
