package event

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePlatformInitialized
	EventTypeGroupCreated
	EventTypeMemberJoined
	EventTypeBetCreated
	EventTypeStakePlaced
	EventTypeBetResolved
	EventTypeWinningsClaimed
	EventTypeCustodyDeposited
	EventTypeCustodyWithdrawn
	EventTypeCommandRejected
)

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType
}

// EventEnvelope wraps every published event
type EventEnvelope struct {
	// Commit sequence the event belongs to (0 for rejections)
	Sequence int64 `json:"sequence"`

	// Request id of the command that produced the event
	IdempotencyKey string `json:"idempotency_key"`

	EventType EventType `json:"event_type"`

	// Clock time of the operation, unix seconds
	Timestamp int64 `json:"timestamp"`

	// JSON-encoded event-specific data
	Payload json.RawMessage `json:"payload"`

	// Ledger hash chain after the commit, and before it
	StateHash string `json:"state_hash,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`
}

// NewEnvelope encodes evt into an envelope.
func NewEnvelope(seq int64, key string, ts int64, stateHash, prevHash [32]byte, evt Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	env := &EventEnvelope{
		Sequence:       seq,
		IdempotencyKey: key,
		EventType:      evt.EventType(),
		Timestamp:      ts,
		Payload:        payload,
	}
	if seq > 0 {
		env.StateHash = hex.EncodeToString(stateHash[:])
		env.PrevHash = hex.EncodeToString(prevHash[:])
	}
	return env, nil
}

func (et EventType) String() string {
	switch et {
	case EventTypePlatformInitialized:
		return "PlatformInitialized"
	case EventTypeGroupCreated:
		return "GroupCreated"
	case EventTypeMemberJoined:
		return "MemberJoined"
	case EventTypeBetCreated:
		return "BetCreated"
	case EventTypeStakePlaced:
		return "StakePlaced"
	case EventTypeBetResolved:
		return "BetResolved"
	case EventTypeWinningsClaimed:
		return "WinningsClaimed"
	case EventTypeCustodyDeposited:
		return "CustodyDeposited"
	case EventTypeCustodyWithdrawn:
		return "CustodyWithdrawn"
	case EventTypeCommandRejected:
		return "CommandRejected"
	default:
		return "Unknown"
	}
}

func (et EventType) MarshalText() ([]byte, error) {
	return []byte(et.String()), nil
}

func (et *EventType) UnmarshalText(text []byte) error {
	for t := EventTypePlatformInitialized; t <= EventTypeCommandRejected; t++ {
		if t.String() == string(text) {
			*et = t
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}
