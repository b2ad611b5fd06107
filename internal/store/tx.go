package store

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/event"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/state"
	"encoding/json"
	"fmt"
)

// Tx buffers the effects of one unit of work. Nothing it stages is visible
// to other operations until the store commits it. A Tx is confined to the
// goroutine running the unit of work.
type Tx struct {
	s        *MemoryStore
	op       Op
	writable map[ledger.Address]struct{}
	readable map[ledger.Address]struct{}
	drawable map[ledger.AccountKey]struct{}

	writes map[ledger.Address]*pendingWrite
	order  []ledger.Address

	batch  *ledger.Batch
	staged map[ledger.AccountKey]uint64
	events []event.Event
}

type pendingWrite struct {
	kind   state.RecordKind
	data   []byte
	create bool
}

func newTx(s *MemoryStore, op Op) *Tx {
	tx := &Tx{
		s:        s,
		op:       op,
		writable: make(map[ledger.Address]struct{}, len(op.Records)),
		readable: make(map[ledger.Address]struct{}, len(op.Records)+len(op.Reads)),
		drawable: make(map[ledger.AccountKey]struct{}, len(op.Accounts)),
		writes:   make(map[ledger.Address]*pendingWrite),
		batch:    ledger.NewBatch(op.IdempotencyKey, op.Timestamp),
	}
	for _, a := range op.Records {
		tx.writable[a] = struct{}{}
		tx.readable[a] = struct{}{}
	}
	for _, a := range op.Reads {
		tx.readable[a] = struct{}{}
	}
	for _, k := range op.Accounts {
		tx.drawable[k] = struct{}{}
	}
	return tx
}

func (tx *Tx) Op() Op { return tx.op }

// Get decodes the record at addr into rec, seeing this unit's own writes.
func (tx *Tx) Get(addr ledger.Address, rec state.Record) error {
	if _, ok := tx.readable[addr]; !ok {
		return fmt.Errorf("get %s %s: %w", rec.Kind(), addr.Short(), errs.ErrUndeclaredRecord)
	}
	if w, ok := tx.writes[addr]; ok {
		return decode(addr, w.kind, w.data, rec)
	}
	_, err := tx.s.Get(addr, rec)
	return err
}

// Exists reports whether a record is present at addr.
func (tx *Tx) Exists(addr ledger.Address) (bool, error) {
	if _, ok := tx.readable[addr]; !ok {
		return false, fmt.Errorf("exists %s: %w", addr.Short(), errs.ErrUndeclaredRecord)
	}
	if _, ok := tx.writes[addr]; ok {
		return true, nil
	}
	return tx.s.exists(addr), nil
}

// Create stages a new record. It fails with ErrRecordExists when the address
// is taken.
func (tx *Tx) Create(addr ledger.Address, rec state.Record) error {
	if _, ok := tx.writable[addr]; !ok {
		return fmt.Errorf("create %s %s: %w", rec.Kind(), addr.Short(), errs.ErrUndeclaredRecord)
	}
	exists, err := tx.Exists(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("create %s %s: %w", rec.Kind(), addr.Short(), errs.ErrRecordExists)
	}
	return tx.stage(addr, rec, true)
}

// Put stages an update to an existing record.
func (tx *Tx) Put(addr ledger.Address, rec state.Record) error {
	if _, ok := tx.writable[addr]; !ok {
		return fmt.Errorf("put %s %s: %w", rec.Kind(), addr.Short(), errs.ErrUndeclaredRecord)
	}
	if w, ok := tx.writes[addr]; ok {
		if w.kind != rec.Kind() {
			return fmt.Errorf("put %s over %s at %s", rec.Kind(), w.kind, addr.Short())
		}
		return tx.stage(addr, rec, w.create)
	}
	kind, ok := tx.s.kindOf(addr)
	if !ok {
		return fmt.Errorf("put %s %s: %w", rec.Kind(), addr.Short(), errs.ErrRecordNotFound)
	}
	if kind != rec.Kind() {
		return fmt.Errorf("put %s over %s at %s", rec.Kind(), kind, addr.Short())
	}
	return tx.stage(addr, rec, false)
}

func (tx *Tx) stage(addr ledger.Address, rec state.Record, create bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	if _, ok := tx.writes[addr]; !ok {
		tx.order = append(tx.order, addr)
	}
	tx.writes[addr] = &pendingWrite{kind: rec.Kind(), data: data, create: create}
	return nil
}

// Balance returns the custody balance including transfers staged so far.
func (tx *Tx) Balance(key ledger.AccountKey) uint64 {
	if v, ok := tx.staged[key]; ok {
		return v
	}
	return tx.s.Balance(key)
}

// StageTransfer moves amount from credit to debit at commit. Authorization is
// the caller's concern; the store only checks the source was declared and can
// cover the amount. Zero amounts are ignored.
func (tx *Tx) StageTransfer(debit, credit ledger.AccountKey, amount uint64, jt ledger.JournalType) error {
	if amount == 0 {
		return nil
	}
	if !credit.IsExternal() {
		if _, ok := tx.drawable[credit]; !ok {
			return fmt.Errorf("draw from %s: %w", credit, errs.ErrUndeclaredRecord)
		}
	}

	n := len(tx.batch.Journals)
	tx.batch.Add(debit, credit, amount, jt)
	next, err := tx.s.previewBatch(tx.batch)
	if err != nil {
		tx.batch.Journals = tx.batch.Journals[:n]
		return err
	}
	tx.staged = next
	return nil
}

// Emit queues an event for publication with the commit.
func (tx *Tx) Emit(evt event.Event) {
	tx.events = append(tx.events, evt)
}

func decode(addr ledger.Address, kind state.RecordKind, data []byte, rec state.Record) error {
	if kind != rec.Kind() {
		return fmt.Errorf("record %s is a %s, not a %s", addr.Short(), kind, rec.Kind())
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, addr.Short(), err)
	}
	return nil
}
