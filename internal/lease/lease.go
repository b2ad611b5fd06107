// Package lease keeps a single ledger writer running. The engine holds all
// state in memory, so two daemons applying commands against the same
// database would fork the hash chain.
package lease

import (
	"FluxLedger/internal/observability"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultKey = "flux:writer-lease"

var (
	ErrLeaseHeld = errors.New("writer lease held by another process")
	ErrLeaseLost = errors.New("writer lease lost")
)

// releaseLua deletes the lease only if it still carries our token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the TTL only if the lease still carries our token.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// WriterLease is a Redis lease (SETNX with TTL) renewed in the background.
type WriterLease struct {
	rdb     *redis.Client
	key     string
	token   string
	ttl     time.Duration
	release *redis.Script
	extend  *redis.Script
	metrics *observability.Metrics
	logger  zerolog.Logger

	once sync.Once
}

func NewWriterLease(rdb *redis.Client, key string, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *WriterLease {
	if key == "" {
		key = DefaultKey
	}
	return &WriterLease{
		rdb:     rdb,
		key:     key,
		token:   uuid.NewString(),
		ttl:     ttl,
		release: redis.NewScript(releaseLua),
		extend:  redis.NewScript(extendLua),
		metrics: metrics,
		logger:  logger,
	}
}

// Acquire takes the lease or returns ErrLeaseHeld.
func (l *WriterLease) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	if l.metrics != nil {
		l.metrics.LeaseHeld.Set(1)
	}
	l.logger.Info().Str("key", l.key).Dur("ttl", l.ttl).Msg("writer lease acquired")
	return nil
}

// Keep renews the lease every ttl/3 until ctx is done. It returns
// ErrLeaseLost once another holder owns the key or renewals keep failing
// past the TTL.
func (l *WriterLease) Keep(ctx context.Context) error {
	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		held, err := l.renew(ctx)
		switch {
		case err != nil:
			if l.metrics != nil {
				l.metrics.LeaseRenewErrors.Inc()
			}
			l.logger.Warn().Err(err).Msg("writer lease renewal failed")
			if time.Since(lastRenewed) >= l.ttl {
				l.lost()
				return fmt.Errorf("%w: no renewal for %s", ErrLeaseLost, time.Since(lastRenewed))
			}
		case !held:
			l.lost()
			return ErrLeaseLost
		default:
			lastRenewed = time.Now()
		}
	}
}

func (l *WriterLease) renew(ctx context.Context) (bool, error) {
	n, err := l.extend.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release gives the lease up. Safe to call more than once.
func (l *WriterLease) Release() {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.release.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
			l.logger.Warn().Err(err).Msg("writer lease release failed")
		}
		if l.metrics != nil {
			l.metrics.LeaseHeld.Set(0)
		}
	})
}

func (l *WriterLease) lost() {
	if l.metrics != nil {
		l.metrics.LeaseHeld.Set(0)
	}
	l.logger.Error().Str("key", l.key).Msg("writer lease lost")
}
