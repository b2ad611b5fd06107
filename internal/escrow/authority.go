package escrow

import (
	"FluxLedger/internal/ledger"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/google/uuid"
)

// Capability is a platform signature over the platform address. Holding one
// authorizes moving funds out of platform-controlled accounts.
type Capability [32]byte

// MintCapability signs the platform address with key. Only settlement code
// that holds the signing key should call it.
func MintCapability(key []byte) Capability {
	mac := hmac.New(sha256.New, key)
	addr := ledger.PlatformAddress()
	mac.Write(addr[:])

	var c Capability
	copy(c[:], mac.Sum(nil))
	return c
}

// Authority is the signer of a transfer: either a user or the platform.
type Authority struct {
	user       uuid.UUID
	capability *Capability
}

// AsUser authorizes moves out of the user's own custody account.
func AsUser(user uuid.UUID) Authority {
	return Authority{user: user}
}

// AsPlatform authorizes moves out of system accounts, subject to the gateway
// verifying c.
func AsPlatform(c Capability) Authority {
	return Authority{capability: &c}
}

func (a Authority) String() string {
	if a.capability != nil {
		return "platform"
	}
	return "user:" + a.user.String()
}
