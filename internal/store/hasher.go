package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

const GenesisHashSeed = "FluxLedger:genesis:v1"

// GenesisHash is the chain tip before the first commit.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// StateHasher chains commit digests
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher starts from tip; pass GenesisHash() for an empty ledger.
func NewStateHasher(tip [32]byte) *StateHasher {
	return &StateHasher{
		prevHash: tip,
	}
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || digest)
// and advances the tip.
func (h *StateHasher) ComputeHash(sequence int64, digest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(digest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))

	h.prevHash = hash

	return hash
}

// Tip returns current chain tip
func (h *StateHasher) Tip() [32]byte {
	return h.prevHash
}

// commitDigest serializes everything a commit changed in a fixed order.
func commitDigest(c *Commit) []byte {
	hasher := sha256.New()
	var buf [8]byte

	writeStr := func(s string) {
		binary.LittleEndian.PutUint32(buf[:4], uint32(len(s)))
		hasher.Write(buf[:4])
		hasher.Write([]byte(s))
	}
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		hasher.Write(buf[:])
	}

	writeStr(c.Operation)
	writeStr(c.IdempotencyKey)
	writeU64(uint64(c.Timestamp))

	for _, r := range c.Records {
		hasher.Write(r.Address[:])
		hasher.Write([]byte{byte(r.Kind)})
		writeU64(uint64(r.Version))
		writeStr(string(r.Data))
	}

	paths := make([]string, 0, len(c.Balances))
	byPath := make(map[string]uint64, len(c.Balances))
	for k, v := range c.Balances {
		p := k.AccountPath()
		paths = append(paths, p)
		byPath[p] = v
	}
	sort.Strings(paths)
	for _, p := range paths {
		writeStr(p)
		writeU64(byPath[p])
	}

	if c.Batch != nil {
		for _, j := range c.Batch.Journals {
			writeStr(j.DebitAccount.AccountPath())
			writeStr(j.CreditAccount.AccountPath())
			writeU64(j.Amount)
			hasher.Write([]byte{byte(j.JournalType)})
		}
	}

	return hasher.Sum(nil)
}
