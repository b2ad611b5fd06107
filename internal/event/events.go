package event

import (
	"FluxLedger/internal/ledger"

	"github.com/google/uuid"
)

type PlatformInitialized struct {
	Admin    uuid.UUID         `json:"admin"`
	FeeBps   uint16            `json:"fee_bps"`
	Treasury ledger.AccountKey `json:"treasury"`
}

func (e *PlatformInitialized) EventType() EventType { return EventTypePlatformInitialized }

type GroupCreated struct {
	Group       ledger.Address `json:"group"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Admin       uuid.UUID      `json:"admin"`
}

func (e *GroupCreated) EventType() EventType { return EventTypeGroupCreated }

type MemberJoined struct {
	Group          ledger.Address `json:"group"`
	User           uuid.UUID      `json:"user"`
	ProfileCreated bool           `json:"profile_created"`
}

func (e *MemberJoined) EventType() EventType { return EventTypeMemberJoined }

type BetCreated struct {
	Bet      ledger.Address `json:"bet"`
	Group    ledger.Address `json:"group"`
	BetID    string         `json:"bet_id"`
	Subject  string         `json:"subject"`
	Creator  uuid.UUID      `json:"creator"`
	Options  []string       `json:"options"`
	Odds     []uint16       `json:"odds"`
	MinStake uint64         `json:"min_stake"`
	EndTime  int64          `json:"end_time"`
}

func (e *BetCreated) EventType() EventType { return EventTypeBetCreated }

type StakePlaced struct {
	Bet         ledger.Address `json:"bet"`
	BetID       string         `json:"bet_id"`
	User        uuid.UUID      `json:"user"`
	Amount      uint64         `json:"amount"`
	OptionIndex uint8          `json:"option_index"`
	TotalPool   uint64         `json:"total_pool"`
}

func (e *StakePlaced) EventType() EventType { return EventTypeStakePlaced }

type BetResolved struct {
	Bet           ledger.Address `json:"bet"`
	BetID         string         `json:"bet_id"`
	Resolver      uuid.UUID      `json:"resolver"`
	WinningOption uint8          `json:"winning_option"`
	ResolvedValue uint64         `json:"resolved_value"`
	TotalPool     uint64         `json:"total_pool"`
}

func (e *BetResolved) EventType() EventType { return EventTypeBetResolved }

type WinningsClaimed struct {
	Bet   ledger.Address `json:"bet"`
	BetID string         `json:"bet_id"`
	User  uuid.UUID      `json:"user"`
	Gross uint64         `json:"gross"`
	Fee   uint64         `json:"fee"`
	Net   uint64         `json:"net"`
}

func (e *WinningsClaimed) EventType() EventType { return EventTypeWinningsClaimed }

type CustodyDeposited struct {
	User    uuid.UUID `json:"user"`
	Amount  uint64    `json:"amount"`
	Balance uint64    `json:"balance"`
}

func (e *CustodyDeposited) EventType() EventType { return EventTypeCustodyDeposited }

type CustodyWithdrawn struct {
	User    uuid.UUID `json:"user"`
	Amount  uint64    `json:"amount"`
	Balance uint64    `json:"balance"`
}

func (e *CustodyWithdrawn) EventType() EventType { return EventTypeCustodyWithdrawn }

// CommandRejected reports a command that failed validation or execution.
// Nothing was applied.
type CommandRejected struct {
	Operation string `json:"operation"`
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *CommandRejected) EventType() EventType { return EventTypeCommandRejected }
