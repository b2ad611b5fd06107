package state

import (
	"fmt"
)

// RecordKind identifies the record type stored at an address
type RecordKind uint8

const (
	RecordKindUnknown RecordKind = iota
	RecordKindPlatform
	RecordKindGroup
	RecordKindBet
	RecordKindUserBet
	RecordKindUserProfile
)

func (k RecordKind) String() string {
	switch k {
	case RecordKindPlatform:
		return "platform"
	case RecordKindGroup:
		return "group"
	case RecordKindBet:
		return "bet"
	case RecordKindUserBet:
		return "user_bet"
	case RecordKindUserProfile:
		return "user_profile"
	default:
		return "unknown"
	}
}

// ParseRecordKind is the inverse of String.
func ParseRecordKind(s string) (RecordKind, error) {
	for k := RecordKindPlatform; k <= RecordKindUserProfile; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return RecordKindUnknown, fmt.Errorf("unknown record kind %q", s)
}

func (k RecordKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RecordKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Record is a persisted ledger record.
type Record interface {
	Kind() RecordKind
}

func (*Platform) Kind() RecordKind    { return RecordKindPlatform }
func (*Group) Kind() RecordKind       { return RecordKindGroup }
func (*Bet) Kind() RecordKind         { return RecordKindBet }
func (*UserBet) Kind() RecordKind     { return RecordKindUserBet }
func (*UserProfile) Kind() RecordKind { return RecordKindUserProfile }

// New returns an empty record of the given kind, for decoding.
func New(kind RecordKind) (Record, error) {
	switch kind {
	case RecordKindPlatform:
		return &Platform{}, nil
	case RecordKindGroup:
		return &Group{}, nil
	case RecordKindBet:
		return &Bet{}, nil
	case RecordKindUserBet:
		return &UserBet{}, nil
	case RecordKindUserProfile:
		return &UserProfile{}, nil
	}
	return nil, fmt.Errorf("no record type for kind %d", kind)
}
