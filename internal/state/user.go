package state

import (
	"FluxLedger/internal/ledger"
	fpmath "FluxLedger/internal/math"
	"fmt"

	"github.com/google/uuid"
)

// UserBet is one user's stake on one bet.
type UserBet struct {
	User        uuid.UUID      `json:"user"`
	Bet         ledger.Address `json:"bet"`
	Amount      uint64         `json:"amount"`
	OptionIndex uint8          `json:"option_index"`
	Claimed     bool           `json:"claimed"`
	Winnings    *uint64        `json:"winnings,omitempty"`
	PlacedAt    int64          `json:"placed_at"`
	ClaimedAt   *int64         `json:"claimed_at,omitempty"`
}

// MarkClaimed sets claimed together with the realized winnings.
func (ub *UserBet) MarkClaimed(winnings uint64, at int64) {
	ub.Claimed = true
	ub.Winnings = &winnings
	ub.ClaimedAt = &at
}

// UserProfile is per-user bookkeeping across groups and bets.
type UserProfile struct {
	User          uuid.UUID              `json:"user"`
	Groups        RefSet[ledger.Address] `json:"groups"`
	ActiveBets    RefSet[ledger.Address] `json:"active_bets"`
	PastBets      RefSet[ledger.Address] `json:"past_bets"`
	TotalWinnings uint64                 `json:"total_winnings"`
	TotalLosses   uint64                 `json:"total_losses"`
	CreatedAt     int64                  `json:"created_at"`
}

func NewUserProfile(user uuid.UUID, at int64) *UserProfile {
	return &UserProfile{User: user, CreatedAt: at}
}

// RetireBet moves a bet from active to past. Past stays duplicate-free and a
// bet missing from active is left alone.
func (p *UserProfile) RetireBet(bet ledger.Address) bool {
	if !p.ActiveBets.Remove(bet) {
		return false
	}
	p.PastBets.Add(bet)
	return true
}

func (p *UserProfile) AddWinnings(amount uint64) error {
	v, err := fpmath.CheckedAdd(p.TotalWinnings, amount)
	if err != nil {
		return fmt.Errorf("total winnings: %w", err)
	}
	p.TotalWinnings = v
	return nil
}
