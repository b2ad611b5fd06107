package lease_test

import (
	"FluxLedger/internal/lease"
	"FluxLedger/internal/observability"
	"FluxLedger/internal/testutil"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	testutil.RequireIntegration(t)

	rdb := redis.NewClient(&redis.Options{Addr: testutil.TestRedisAddr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("test redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestWriterLease_SingleHolder(t *testing.T) {
	rdb := newClient(t)
	ctx := context.Background()
	key := "flux:test-lease:" + uuid.NewString()
	logger := observability.NewLogger("test")

	first := lease.NewWriterLease(rdb, key, 5*time.Second, nil, logger)
	second := lease.NewWriterLease(rdb, key, 5*time.Second, nil, logger)

	if err := first.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := second.Acquire(ctx); !errors.Is(err, lease.ErrLeaseHeld) {
		t.Fatalf("second acquire: got %v, want ErrLeaseHeld", err)
	}

	// Releasing a lease we do not hold leaves the holder in place.
	second.Release()
	if err := second.Acquire(ctx); !errors.Is(err, lease.ErrLeaseHeld) {
		t.Fatalf("after foreign release: got %v, want ErrLeaseHeld", err)
	}

	first.Release()
	first.Release()
	if err := second.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	second.Release()
}

func TestWriterLease_KeepDetectsTakeover(t *testing.T) {
	rdb := newClient(t)
	ctx := context.Background()
	key := "flux:test-lease:" + uuid.NewString()

	l := lease.NewWriterLease(rdb, key, 300*time.Millisecond, nil, observability.NewLogger("test"))
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release()

	if err := rdb.Set(ctx, key, "someone-else", time.Minute).Err(); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	defer rdb.Del(ctx, key)

	done := make(chan error, 1)
	go func() { done <- l.Keep(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, lease.ErrLeaseLost) {
			t.Fatalf("keep: got %v, want ErrLeaseLost", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("keep did not notice the takeover")
	}
}
