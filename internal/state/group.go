package state

import (
	"FluxLedger/internal/ledger"

	"github.com/google/uuid"
)

// Group is a roster of members and the container bets are opened in.
type Group struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Admin       uuid.UUID              `json:"admin"`
	Members     RefSet[uuid.UUID]      `json:"members"`
	ActiveBets  RefSet[ledger.Address] `json:"active_bets"`
	PastBets    RefSet[ledger.Address] `json:"past_bets"`
	CreatedAt   int64                  `json:"created_at"`
}

func (g *Group) IsMember(user uuid.UUID) bool {
	return g.Members.Contains(user)
}

// RetireBet moves a bet from active to past. A bet missing from the active
// list is left alone.
func (g *Group) RetireBet(bet ledger.Address) bool {
	if !g.ActiveBets.Remove(bet) {
		return false
	}
	g.PastBets.Add(bet)
	return true
}
