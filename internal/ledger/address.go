package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/google/uuid"
)

// Namespace tags for derived record addresses.
const (
	SeedPlatform    = "platform"
	SeedGroup       = "group"
	SeedBet         = "bet"
	SeedUserBet     = "user_bet"
	SeedUserProfile = "user_profile"
)

// MaxSeedLen bounds caller-supplied seed strings (group names, bet ids).
const MaxSeedLen = 32

// Address is the deterministic storage key of a record (32 bytes).
type Address [32]byte

// DeriveAddress hashes a namespace tag and identifying fields into an address.
// Each component is length-prefixed so ("ab","c") and ("a","bc") never collide.
func DeriveAddress(tag string, fields ...[]byte) Address {
	h := sha256.New()
	writeSeed(h, []byte(tag))
	for _, f := range fields {
		writeSeed(h, f)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

func writeSeed(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

func PlatformAddress() Address {
	return DeriveAddress(SeedPlatform)
}

func GroupAddress(admin uuid.UUID, name string) Address {
	return DeriveAddress(SeedGroup, admin[:], []byte(name))
}

func BetAddress(group Address, betID string) Address {
	return DeriveAddress(SeedBet, group[:], []byte(betID))
}

func UserBetAddress(bet Address, user uuid.UUID) Address {
	return DeriveAddress(SeedUserBet, bet[:], user[:])
}

func UserProfileAddress(user uuid.UUID) Address {
	return DeriveAddress(SeedUserProfile, user[:])
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 8 hex characters, for logs.
func (a Address) Short() string {
	return hex.EncodeToString(a[:4])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 64-character hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("address %q has %d bytes, want %d", s, len(b), len(a))
	}
	copy(a[:], b)
	return a, nil
}
