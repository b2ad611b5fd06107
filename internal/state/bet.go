package state

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	fpmath "FluxLedger/internal/math"
	"fmt"

	"github.com/google/uuid"
)

// Option count bounds for a bet.
const (
	MinOptions = 2
	MaxOptions = 10
)

// BetStatus is derived from the resolved flag.
type BetStatus int32

const (
	BetStatusOpen BetStatus = iota
	BetStatusResolved
)

func (s BetStatus) String() string {
	switch s {
	case BetStatusOpen:
		return "Open"
	case BetStatusResolved:
		return "Resolved"
	default:
		return "Unknown"
	}
}

// Bet is a wager with fixed per-option odds and a shared stake pool.
type Bet struct {
	ID             string         `json:"id"`
	Group          ledger.Address `json:"group"`
	Creator        uuid.UUID      `json:"creator"`
	Subject        string         `json:"subject"`
	Description    string         `json:"description"`
	Options        []string       `json:"options"`
	Odds           []uint16       `json:"odds"` // basis-100: 250 = 2.50x
	MinStake       uint64         `json:"min_stake"`
	TotalPool      uint64         `json:"total_pool"`
	StakePerOption []uint64       `json:"stake_per_option"`
	CreatedAt      int64          `json:"created_at"`
	EndTime        int64          `json:"end_time"`
	Resolved       bool           `json:"resolved"`
	WinningOption  *uint8         `json:"winning_option,omitempty"`
	ResolvedValue  *uint64        `json:"resolved_value,omitempty"`
	ResolvedAt     *int64         `json:"resolved_at,omitempty"`
}

func (b *Bet) Status() BetStatus {
	if b.Resolved {
		return BetStatusResolved
	}
	return BetStatusOpen
}

// AddStake credits amount to the pool and to one option's accumulator.
// Both sums are computed before either is written.
func (b *Bet) AddStake(option uint8, amount uint64) error {
	if int(option) >= len(b.StakePerOption) {
		return errs.ErrInvalidOptionIndex
	}
	pool, err := fpmath.CheckedAdd(b.TotalPool, amount)
	if err != nil {
		return fmt.Errorf("total pool: %w", err)
	}
	perOption, err := fpmath.CheckedAdd(b.StakePerOption[option], amount)
	if err != nil {
		return fmt.Errorf("option %d stake: %w", option, err)
	}
	b.TotalPool = pool
	b.StakePerOption[option] = perOption
	return nil
}

// Resolve records the outcome. Callers validate first.
func (b *Bet) Resolve(winner uint8, value uint64, at int64) {
	b.Resolved = true
	b.WinningOption = &winner
	b.ResolvedValue = &value
	b.ResolvedAt = &at
}

// WinningOdds returns the odds of the winning option.
func (b *Bet) WinningOdds() (uint16, error) {
	if !b.Resolved || b.WinningOption == nil {
		return 0, errs.ErrBetNotResolved
	}
	w := int(*b.WinningOption)
	if w >= len(b.Odds) {
		return 0, fmt.Errorf("winning option %d of %d: %w", w, len(b.Odds), errs.ErrInvalidOptionIndex)
	}
	return b.Odds[w], nil
}

// CheckInvariants reports the first broken structural invariant.
func (b *Bet) CheckInvariants() error {
	n := len(b.Options)
	if len(b.Odds) != n || len(b.StakePerOption) != n {
		return fmt.Errorf("bet %s: options=%d odds=%d stakes=%d", b.ID, n, len(b.Odds), len(b.StakePerOption))
	}
	if n < MinOptions || n > MaxOptions {
		return fmt.Errorf("bet %s: %d options", b.ID, n)
	}
	var sum uint64
	for _, s := range b.StakePerOption {
		var err error
		if sum, err = fpmath.CheckedAdd(sum, s); err != nil {
			return fmt.Errorf("bet %s: %w", b.ID, err)
		}
	}
	if sum != b.TotalPool {
		return fmt.Errorf("bet %s: total_pool=%d, sum of option stakes=%d", b.ID, b.TotalPool, sum)
	}
	if b.Resolved != (b.WinningOption != nil) {
		return fmt.Errorf("bet %s: resolved=%v with winning option set=%v", b.ID, b.Resolved, b.WinningOption != nil)
	}
	return nil
}
