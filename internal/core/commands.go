package core

import (
	"FluxLedger/internal/ledger"

	"github.com/google/uuid"
)

// Operation names. They double as NATS subject suffixes and metric labels.
const (
	OpInitializePlatform = "initialize_platform"
	OpCreateGroup        = "create_group"
	OpJoinGroup          = "join_group"
	OpCreateBet          = "create_bet"
	OpPlaceBet           = "place_bet"
	OpResolveBet         = "resolve_bet"
	OpClaimWinnings      = "claim_winnings"
	OpDeposit            = "deposit"
	OpWithdraw           = "withdraw"
)

// Operations lists every command the engine accepts.
var Operations = []string{
	OpInitializePlatform,
	OpCreateGroup,
	OpJoinGroup,
	OpCreateBet,
	OpPlaceBet,
	OpResolveBet,
	OpClaimWinnings,
	OpDeposit,
	OpWithdraw,
}

// Command is a request to mutate the ledger. RequestID is the idempotency
// key; an empty one disables deduplication.
type Command interface {
	Operation() string
	RequestKey() string
}

type InitializePlatform struct {
	RequestID string    `json:"request_id"`
	Admin     uuid.UUID `json:"admin"`
	FeeBps    uint16    `json:"fee_bps"`
}

type CreateGroup struct {
	RequestID   string    `json:"request_id"`
	Admin       uuid.UUID `json:"admin"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type JoinGroup struct {
	RequestID string         `json:"request_id"`
	Group     ledger.Address `json:"group"`
	User      uuid.UUID      `json:"user"`
}

type CreateBet struct {
	RequestID   string         `json:"request_id"`
	Group       ledger.Address `json:"group"`
	Creator     uuid.UUID      `json:"creator"`
	BetID       string         `json:"bet_id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Options     []string       `json:"options"`
	Odds        []uint16       `json:"odds"`
	EndTime     int64          `json:"end_time"`
	MinStake    uint64         `json:"min_stake"`
}

type PlaceBet struct {
	RequestID   string         `json:"request_id"`
	Group       ledger.Address `json:"group"`
	BetID       string         `json:"bet_id"`
	User        uuid.UUID      `json:"user"`
	Amount      uint64         `json:"amount"`
	OptionIndex uint8          `json:"option_index"`
}

type ResolveBet struct {
	RequestID     string         `json:"request_id"`
	Group         ledger.Address `json:"group"`
	BetID         string         `json:"bet_id"`
	Resolver      uuid.UUID      `json:"resolver"`
	WinningOption uint8          `json:"winning_option"`
	ResolvedValue uint64         `json:"resolved_value"`
}

type ClaimWinnings struct {
	RequestID string         `json:"request_id"`
	Group     ledger.Address `json:"group"`
	BetID     string         `json:"bet_id"`
	User      uuid.UUID      `json:"user"`
}

type Deposit struct {
	RequestID string    `json:"request_id"`
	User      uuid.UUID `json:"user"`
	Amount    uint64    `json:"amount"`
}

type Withdraw struct {
	RequestID string    `json:"request_id"`
	User      uuid.UUID `json:"user"`
	Amount    uint64    `json:"amount"`
}

func (c *InitializePlatform) Operation() string { return OpInitializePlatform }
func (c *CreateGroup) Operation() string        { return OpCreateGroup }
func (c *JoinGroup) Operation() string          { return OpJoinGroup }
func (c *CreateBet) Operation() string          { return OpCreateBet }
func (c *PlaceBet) Operation() string           { return OpPlaceBet }
func (c *ResolveBet) Operation() string         { return OpResolveBet }
func (c *ClaimWinnings) Operation() string      { return OpClaimWinnings }
func (c *Deposit) Operation() string            { return OpDeposit }
func (c *Withdraw) Operation() string           { return OpWithdraw }

func (c *InitializePlatform) RequestKey() string { return c.RequestID }
func (c *CreateGroup) RequestKey() string        { return c.RequestID }
func (c *JoinGroup) RequestKey() string          { return c.RequestID }
func (c *CreateBet) RequestKey() string          { return c.RequestID }
func (c *PlaceBet) RequestKey() string           { return c.RequestID }
func (c *ResolveBet) RequestKey() string         { return c.RequestID }
func (c *ClaimWinnings) RequestKey() string      { return c.RequestID }
func (c *Deposit) RequestKey() string            { return c.RequestID }
func (c *Withdraw) RequestKey() string           { return c.RequestID }

// NewCommand returns an empty command for an operation name, for decoding.
func NewCommand(operation string) (Command, bool) {
	switch operation {
	case OpInitializePlatform:
		return &InitializePlatform{}, true
	case OpCreateGroup:
		return &CreateGroup{}, true
	case OpJoinGroup:
		return &JoinGroup{}, true
	case OpCreateBet:
		return &CreateBet{}, true
	case OpPlaceBet:
		return &PlaceBet{}, true
	case OpResolveBet:
		return &ResolveBet{}, true
	case OpClaimWinnings:
		return &ClaimWinnings{}, true
	case OpDeposit:
		return &Deposit{}, true
	case OpWithdraw:
		return &Withdraw{}, true
	}
	return nil, false
}
