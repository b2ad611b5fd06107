// Package core applies betting ledger commands. Every command runs as one
// store unit of work: its record writes, custody transfers and events commit
// together or not at all.
package core

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/escrow"
	"FluxLedger/internal/event"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/observability"
	"FluxLedger/internal/state"
	"FluxLedger/internal/store"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultLRUCapacity = 1_000_000

var errDuplicate = errors.New("duplicate request")

// Config wires an Engine. Only SigningKey is required.
type Config struct {
	// SigningKey backs the platform capability that authorizes payouts
	// from the treasury.
	SigningKey []byte

	Clock       Clock
	LRUCapacity int
	DBChecker   DBIdempotencyChecker

	// CommitChan receives every commit in sequence order (blocking send).
	CommitChan chan<- *store.Commit

	Metrics *observability.Metrics
	Logger  *zerolog.Logger
}

// Engine is the betting ledger. It is safe for concurrent use; commands on
// disjoint records run in parallel.
type Engine struct {
	store       *store.MemoryStore
	gateway     *escrow.Gateway
	signingKey  []byte
	clock       Clock
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = DefaultLRUCapacity
	}
	logger := observability.NewLogger("engine")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	idempotency := NewIdempotencyChecker(cfg.LRUCapacity, cfg.DBChecker, cfg.Metrics)

	opts := []store.Option{
		store.WithCommitHook(idempotency.MarkCommitted),
		store.WithLogger(logger),
	}
	if cfg.CommitChan != nil {
		opts = append(opts, store.WithCommitChannel(cfg.CommitChan))
	}
	if cfg.Metrics != nil {
		opts = append(opts, store.WithMetrics(cfg.Metrics))
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &Engine{
		store:       store.NewMemoryStore(opts...),
		gateway:     escrow.NewGateway(key),
		signingKey:  key,
		clock:       cfg.Clock,
		idempotency: idempotency,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Dispatch applies one command. A request whose RequestID was already
// applied returns a nil commit and a nil error.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (*store.Commit, error) {
	start := time.Now()
	operation := cmd.Operation()

	c, err := e.dispatchCommand(ctx, cmd)
	if errors.Is(err, errDuplicate) {
		e.logger.Debug().
			Str("operation", operation).
			Str("request_id", cmd.RequestKey()).
			Msg("duplicate request skipped")
		return nil, nil
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(operation, errs.CodeOf(err)).Inc()
		}
		e.logger.Debug().
			Err(err).
			Str("operation", operation).
			Str("request_id", cmd.RequestKey()).
			Str("code", errs.CodeOf(err)).
			Msg("command rejected")
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(operation).Inc()
		e.metrics.OpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	return c, nil
}

func (e *Engine) dispatchCommand(ctx context.Context, cmd Command) (*store.Commit, error) {
	switch c := cmd.(type) {
	case *InitializePlatform:
		return e.InitializePlatform(ctx, c)
	case *CreateGroup:
		return e.CreateGroup(ctx, c)
	case *JoinGroup:
		return e.JoinGroup(ctx, c)
	case *CreateBet:
		return e.CreateBet(ctx, c)
	case *PlaceBet:
		return e.PlaceBet(ctx, c)
	case *ResolveBet:
		return e.ResolveBet(ctx, c)
	case *ClaimWinnings:
		return e.ClaimWinnings(ctx, c)
	case *Deposit:
		return e.Deposit(ctx, c)
	case *Withdraw:
		return e.Withdraw(ctx, c)
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// update runs fn as the command's unit of work. The duplicate check runs
// under the request's lock so concurrent redeliveries apply once.
func (e *Engine) update(ctx context.Context, cmd Command, op store.Op, fn func(tx *store.Tx) error) (*store.Commit, error) {
	op.Name = cmd.Operation()
	op.IdempotencyKey = cmd.RequestKey()
	op.Timestamp = e.clock.Now()

	return e.store.Update(ctx, op, func(tx *store.Tx) error {
		if op.IdempotencyKey != "" && e.idempotency.IsDuplicate(op.Name, op.IdempotencyKey) {
			return errDuplicate
		}
		return fn(tx)
	})
}

// Rejection describes a failed command for publication.
func Rejection(cmd Command, err error) *event.CommandRejected {
	return &event.CommandRejected{
		Operation: cmd.Operation(),
		RequestID: cmd.RequestKey(),
		Kind:      errs.KindOf(err).String(),
		Code:      errs.CodeOf(err),
		Message:   err.Error(),
	}
}

// --- Custody ---

func (e *Engine) Deposit(ctx context.Context, cmd *Deposit) (*store.Commit, error) {
	acct := ledger.NewUserAccountKey(cmd.User)
	op := store.Op{Reads: []ledger.Address{ledger.PlatformAddress()}}

	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		if _, err := loadPlatform(tx); err != nil {
			return err
		}
		if err := e.gateway.Deposit(tx, cmd.User, cmd.Amount); err != nil {
			return err
		}
		tx.Emit(&event.CustodyDeposited{User: cmd.User, Amount: cmd.Amount, Balance: tx.Balance(acct)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("user", cmd.User.String()).
		Uint64("amount", cmd.Amount).
		Msg("custody deposited")
	return c, nil
}

func (e *Engine) Withdraw(ctx context.Context, cmd *Withdraw) (*store.Commit, error) {
	acct := ledger.NewUserAccountKey(cmd.User)
	op := store.Op{
		Reads:    []ledger.Address{ledger.PlatformAddress()},
		Accounts: []ledger.AccountKey{acct},
	}

	c, err := e.update(ctx, cmd, op, func(tx *store.Tx) error {
		if _, err := loadPlatform(tx); err != nil {
			return err
		}
		if err := e.gateway.Withdraw(tx, cmd.User, cmd.Amount, escrow.AsUser(cmd.User)); err != nil {
			return err
		}
		tx.Emit(&event.CustodyWithdrawn{User: cmd.User, Amount: cmd.Amount, Balance: tx.Balance(acct)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("user", cmd.User.String()).
		Uint64("amount", cmd.Amount).
		Msg("custody withdrawn")
	return c, nil
}

// --- Read accessors ---

func (e *Engine) Platform() (*state.Platform, error) {
	var p state.Platform
	if _, err := e.store.Get(ledger.PlatformAddress(), &p); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return nil, errs.ErrPlatformNotInitialized
		}
		return nil, err
	}
	return &p, nil
}

func (e *Engine) Group(addr ledger.Address) (*state.Group, error) {
	var g state.Group
	if _, err := e.store.Get(addr, &g); err != nil {
		return nil, notFound(err, errs.ErrGroupNotFound)
	}
	return &g, nil
}

func (e *Engine) Bet(group ledger.Address, betID string) (*state.Bet, error) {
	var b state.Bet
	if _, err := e.store.Get(ledger.BetAddress(group, betID), &b); err != nil {
		return nil, notFound(err, errs.ErrBetNotFound)
	}
	return &b, nil
}

func (e *Engine) UserBet(bet ledger.Address, user uuid.UUID) (*state.UserBet, error) {
	var ub state.UserBet
	if _, err := e.store.Get(ledger.UserBetAddress(bet, user), &ub); err != nil {
		return nil, notFound(err, errs.ErrStakeNotFound)
	}
	return &ub, nil
}

func (e *Engine) Profile(user uuid.UUID) (*state.UserProfile, error) {
	var p state.UserProfile
	if _, err := e.store.Get(ledger.UserProfileAddress(user), &p); err != nil {
		return nil, notFound(err, errs.ErrProfileNotFound)
	}
	return &p, nil
}

// Balance returns a user's custody balance.
func (e *Engine) Balance(user uuid.UUID) uint64 {
	return e.store.Balance(ledger.NewUserAccountKey(user))
}

// TreasuryBalance returns the pooled stakes held by the platform.
func (e *Engine) TreasuryBalance() uint64 {
	return e.store.Balance(ledger.TreasuryAccountKey())
}

// Sequence returns the last committed sequence.
func (e *Engine) Sequence() int64 {
	return e.store.Sequence()
}

// StateHash returns the current state hash (chain tip).
func (e *Engine) StateHash() [32]byte {
	return e.store.Tip()
}

// Restore loads recovered state before the engine takes commands.
func (e *Engine) Restore(snap store.Snapshot) error {
	return e.store.Restore(snap)
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.Warm(keys)
}

// Scan exposes committed records of one kind, for metrics and recovery checks.
func (e *Engine) Scan(kind state.RecordKind, fn func(addr ledger.Address, data []byte) error) error {
	return e.store.Scan(kind, fn)
}

func notFound(err, sentinel error) error {
	if errors.Is(err, errs.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
