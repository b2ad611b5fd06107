package ledger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCustody AccountSubType = iota

	// System sub-types
	SubTypeTreasury

	// External sub-types. These accumulate the value that crossed the
	// boundary in each direction rather than holding a balance.
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// TreasuryName names the platform treasury system account.
const TreasuryName = "treasury"

// AccountKey is the in-memory key for custody balances (18 bytes).
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
}

// NewUserAccountKey creates the custody account of a user
func NewUserAccountKey(userID uuid.UUID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeCustody,
	}
}

// NewSystemAccountKey creates a key for system accounts. Names longer than
// 16 bytes are truncated.
func NewSystemAccountKey(name string, subType AccountSubType) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
	}
}

// TreasuryAccountKey is the platform-controlled account holding pooled stakes.
func TreasuryAccountKey() AccountKey {
	return NewSystemAccountKey(TreasuryName, SubTypeTreasury)
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
	}
}

func (k AccountKey) IsUser() bool     { return k.Scope == AccountScopeUser }
func (k AccountKey) IsExternal() bool { return k.Scope == AccountScopeExternal }

// UserID returns the owning user of a user-scope account.
func (k AccountKey) UserID() (uuid.UUID, bool) {
	if k.Scope != AccountScopeUser {
		return uuid.Nil, false
	}
	return uuid.UUID(k.EntityID), true
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s", uid.String(), k.subTypeName())
	case AccountScopeSystem:
		name := string(bytes.TrimRight(k.EntityID[:], "\x00"))
		return fmt.Sprintf("system:%s:%s", name, k.subTypeName())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) String() string {
	return k.AccountPath()
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCustody:
		return "custody"
	case SubTypeTreasury:
		return "treasury"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}

func parseSubType(s string) (AccountSubType, error) {
	switch s {
	case "custody":
		return SubTypeCustody, nil
	case "treasury":
		return SubTypeTreasury, nil
	case "deposits":
		return SubTypeExternalDeposits, nil
	case "withdrawals":
		return SubTypeExternalWithdrawals, nil
	}
	return 0, fmt.Errorf("unknown account sub-type %q", s)
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 3 && parts[0] == "user":
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account %q: %w", path, err)
		}
		st, err := parseSubType(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return AccountKey{Scope: AccountScopeUser, EntityID: uid, SubType: st}, nil
	case len(parts) == 3 && parts[0] == "system":
		st, err := parseSubType(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return NewSystemAccountKey(parts[1], st), nil
	case len(parts) == 2 && parts[0] == "external":
		st, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		return NewExternalAccountKey(st), nil
	}
	return AccountKey{}, fmt.Errorf("malformed account path %q", path)
}

func (k AccountKey) MarshalText() ([]byte, error) {
	return []byte(k.AccountPath()), nil
}

func (k *AccountKey) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountPath(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
