package store

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/observability"
	"FluxLedger/internal/state"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type storedRecord struct {
	kind    state.RecordKind
	version int64
	data    []byte
}

// MemoryStore is the in-process Store. Units of work on disjoint keys run in
// parallel; commits are applied one at a time in sequence order.
type MemoryStore struct {
	locks Locker

	// commitMu orders commits and their emission on out.
	commitMu sync.Mutex

	// mu guards everything below.
	mu        sync.RWMutex
	records   map[ledger.Address]storedRecord
	balances  *ledger.BalanceTracker
	validator *ledger.InvariantValidator
	hasher    *StateHasher
	sequence  int64

	out     chan<- *Commit
	hooks   []func(*Commit)
	metrics *observability.Metrics
	logger  zerolog.Logger
}

type Option func(*MemoryStore)

// WithLocker replaces the in-process KeyedLocker.
func WithLocker(l Locker) Option {
	return func(s *MemoryStore) { s.locks = l }
}

// WithCommitChannel makes every commit be sent on ch, in sequence order.
// The send blocks, so a slow consumer stalls writers.
func WithCommitChannel(ch chan<- *Commit) Option {
	return func(s *MemoryStore) { s.out = ch }
}

// WithCommitHook runs fn after each commit is applied, while the unit of
// work still holds its locks. fn must not call back into the store's Update.
func WithCommitHook(fn func(*Commit)) Option {
	return func(s *MemoryStore) { s.hooks = append(s.hooks, fn) }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *MemoryStore) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *MemoryStore) { s.logger = l }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	balances := ledger.NewBalanceTracker()
	s := &MemoryStore{
		locks:     NewKeyedLocker(),
		records:   make(map[ledger.Address]storedRecord),
		balances:  balances,
		validator: ledger.NewInvariantValidator(balances),
		hasher:    NewStateHasher(GenesisHash()),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs fn as one atomic unit of work. It waits for the op's declared
// keys (or ctx), runs fn, and commits everything fn staged. If fn fails,
// nothing is applied and its error is returned unchanged.
func (s *MemoryStore) Update(ctx context.Context, op Op, fn func(tx *Tx) error) (*Commit, error) {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, op.lockKeys())
	if err != nil {
		return nil, fmt.Errorf("%s: acquire locks: %w", op.Name, err)
	}
	defer unlock()
	if s.metrics != nil {
		s.metrics.LockWait.Observe(time.Since(start).Seconds())
	}

	tx := newTx(s, op)
	if err := fn(tx); err != nil {
		return nil, err
	}

	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *Tx) (*Commit, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	c, err := s.apply(tx)
	if err != nil {
		return nil, err
	}
	for _, fn := range s.hooks {
		fn(c)
	}

	if s.out != nil {
		select {
		case s.out <- c:
		default:
			if s.metrics != nil {
				s.metrics.PersistBackpressure.Inc()
			}
			s.out <- c
		}
	}

	return c, nil
}

func (s *MemoryStore) apply(tx *Tx) (*Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := tx.op
	c := &Commit{
		Operation:      op.Name,
		IdempotencyKey: op.IdempotencyKey,
		Timestamp:      op.Timestamp,
		Records:        make([]RecordWrite, 0, len(tx.order)),
		Events:         tx.events,
	}

	for _, addr := range tx.order {
		w := tx.writes[addr]
		cur, exists := s.records[addr]
		if w.create && exists {
			return nil, fmt.Errorf("%s: create %s %s: %w", op.Name, w.kind, addr.Short(), errs.ErrRecordExists)
		}
		c.Records = append(c.Records, RecordWrite{
			Address: addr,
			Kind:    w.kind,
			Version: cur.version + 1,
			Data:    w.data,
		})
	}

	// Credits from other units may have landed since staging, so balances
	// are recomputed against what is committed now. ApplyBatch is all or
	// nothing, and nothing after it can fail.
	seq := s.sequence + 1
	if len(tx.batch.Journals) > 0 {
		next, err := s.balances.ApplyBatch(tx.batch)
		if err != nil {
			return nil, fmt.Errorf("%s: apply transfers: %w", op.Name, err)
		}
		tx.batch.Stamp(seq)
		c.Batch = tx.batch
		c.Balances = next
	}

	hashStart := time.Now()
	c.Sequence = seq

	for _, r := range c.Records {
		s.records[r.Address] = storedRecord{kind: r.Kind, version: r.Version, data: r.Data}
	}

	c.PrevHash = s.hasher.Tip()
	c.StateHash = s.hasher.ComputeHash(seq, commitDigest(c))
	s.sequence = seq

	if err := s.validator.ValidateConservation(); err != nil {
		panic(fmt.Sprintf("FATAL: custody invariant violated at sequence %d: %v", seq, err))
	}

	if s.metrics != nil {
		s.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
		s.metrics.CommitSeq.Set(float64(seq))
		s.metrics.TreasuryBalance.Set(float64(s.balances.GetTreasuryBalance()))
		if c.Batch != nil {
			for _, j := range c.Batch.Journals {
				s.metrics.Journals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	s.logger.Debug().
		Int64("sequence", seq).
		Str("operation", op.Name).
		Str("idempotency_key", op.IdempotencyKey).
		Int("records", len(c.Records)).
		Msg("commit applied")

	return c, nil
}

func (s *MemoryStore) previewBatch(b *ledger.Batch) (map[ledger.AccountKey]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances.Preview(b, nil)
}

// Get decodes the committed record at addr into rec and returns its version.
func (s *MemoryStore) Get(addr ledger.Address, rec state.Record) (int64, error) {
	s.mu.RLock()
	r, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s %s: %w", rec.Kind(), addr.Short(), errs.ErrRecordNotFound)
	}
	if err := decode(addr, r.kind, r.data, rec); err != nil {
		return 0, err
	}
	return r.version, nil
}

func (s *MemoryStore) exists(addr ledger.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[addr]
	return ok
}

func (s *MemoryStore) kindOf(addr ledger.Address) (state.RecordKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[addr]
	return r.kind, ok
}

// Balance returns the committed custody balance of an account.
func (s *MemoryStore) Balance(key ledger.AccountKey) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances.GetBalance(key)
}

// ValidateTreasuryCovers checks the committed treasury balance against an
// outstanding liability.
func (s *MemoryStore) ValidateTreasuryCovers(outstanding uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validator.ValidateTreasuryCovers(outstanding)
}

// Sequence returns the last committed sequence.
func (s *MemoryStore) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

// Tip returns the state hash of the last commit.
func (s *MemoryStore) Tip() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasher.Tip()
}

// Scan calls fn for every committed record of the given kind, in no
// particular order. fn must not call back into the store.
func (s *MemoryStore) Scan(kind state.RecordKind, fn func(addr ledger.Address, data []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for addr, r := range s.records {
		if r.kind != kind {
			continue
		}
		if err := fn(addr, r.data); err != nil {
			return err
		}
	}
	return nil
}

// Restore loads a snapshot into an empty store.
func (s *MemoryStore) Restore(snap Snapshot) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sequence != 0 || len(s.records) != 0 {
		return fmt.Errorf("restore into non-empty store at sequence %d", s.sequence)
	}

	for _, r := range snap.Records {
		s.records[r.Address] = storedRecord{kind: r.Kind, version: r.Version, data: r.Data}
	}
	s.balances.SetBalances(snap.Balances)
	if err := s.validator.ValidateConservation(); err != nil {
		s.records = make(map[ledger.Address]storedRecord)
		s.balances = ledger.NewBalanceTracker()
		s.validator = ledger.NewInvariantValidator(s.balances)
		return fmt.Errorf("snapshot at sequence %d: %w", snap.Sequence, err)
	}

	s.sequence = snap.Sequence
	if snap.Sequence == 0 {
		s.hasher = NewStateHasher(GenesisHash())
	} else {
		s.hasher = NewStateHasher(snap.Tip)
	}

	s.logger.Info().
		Int64("sequence", snap.Sequence).
		Int("records", len(snap.Records)).
		Int("accounts", len(snap.Balances)).
		Msg("store restored")

	return nil
}

var _ Store = (*MemoryStore)(nil)
