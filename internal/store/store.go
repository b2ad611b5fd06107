// Package store is the keyed record store every ledger operation runs
// against. A unit of work declares the records and custody accounts it will
// touch, runs against a buffered transaction, and commits all of its record
// writes, journals and events together or nothing at all.
package store

import (
	"FluxLedger/internal/event"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/state"
	"context"
	"encoding/json"
)

// Op declares a unit of work.
type Op struct {
	Name           string
	IdempotencyKey string
	Timestamp      int64

	// Records the operation may create or modify. Each is locked for the
	// duration of the unit of work.
	Records []ledger.Address

	// Records the operation only reads. They are not locked, so they should
	// hold values that do not change once written.
	Reads []ledger.Address

	// Custody accounts the operation may draw from. Each is locked. Accounts
	// only credited need no declaration.
	Accounts []ledger.AccountKey
}

func (op Op) lockKeys() []string {
	keys := make([]string, 0, len(op.Records)+len(op.Accounts)+1)
	if op.IdempotencyKey != "" {
		// Redeliveries of one request run one at a time.
		keys = append(keys, "req:"+op.Name+":"+op.IdempotencyKey)
	}
	for _, a := range op.Records {
		keys = append(keys, "rec:"+a.String())
	}
	for _, k := range op.Accounts {
		keys = append(keys, "acct:"+k.AccountPath())
	}
	return keys
}

// RecordWrite is one record as committed.
type RecordWrite struct {
	Address ledger.Address   `json:"address"`
	Kind    state.RecordKind `json:"kind"`
	Version int64            `json:"version"`
	Data    json.RawMessage  `json:"data"`
}

// Commit is the durable outcome of one unit of work.
type Commit struct {
	Sequence       int64                        `json:"sequence"`
	Operation      string                       `json:"operation"`
	IdempotencyKey string                       `json:"idempotency_key"`
	Timestamp      int64                        `json:"timestamp"`
	Records        []RecordWrite                `json:"records"`
	Balances       map[ledger.AccountKey]uint64 `json:"balances,omitempty"` // post-commit, touched accounts only
	Batch          *ledger.Batch                `json:"batch,omitempty"`
	Events         []event.Event                `json:"-"`
	StateHash      [32]byte                     `json:"state_hash"`
	PrevHash       [32]byte                     `json:"prev_hash"`
}

// Snapshot is a full store image used to rebuild state on startup.
type Snapshot struct {
	Sequence int64
	Tip      [32]byte
	Records  []RecordWrite
	Balances map[ledger.AccountKey]uint64
}

// Store is what ledger operations need from the substrate.
type Store interface {
	Update(ctx context.Context, op Op, fn func(tx *Tx) error) (*Commit, error)
	Get(addr ledger.Address, rec state.Record) (int64, error)
	Balance(key ledger.AccountKey) uint64
}
