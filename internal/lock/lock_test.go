package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/charge_auth/internal/ledger"
	"github.com/congo-pay/charge_auth/internal/store"
)

func memConn(t *testing.T, mem *store.Memory) store.Conn {
	t.Helper()
	conn, err := mem.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	first, second := memConn(t, mem), memConn(t, mem)

	held, ok, err := Acquire(ctx, first, "acct", 0)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := Acquire(ctx, second, "acct", 0); err != nil || ok {
		t.Fatalf("expected contention, got ok=%v err=%v", ok, err)
	}

	if err := held.Release(ctx, first); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, present, _ := first.Get(ctx, ledger.LockKey("acct")); present {
		t.Fatal("expected lock key removed after release")
	}
	if _, ok, err := Acquire(ctx, second, "acct", 0); err != nil || !ok {
		t.Fatalf("expected acquire after release, got ok=%v err=%v", ok, err)
	}
}

func TestFenceIncreasesOnEveryAttempt(t *testing.T) {
	ctx := context.Background()
	conn := memConn(t, store.NewMemory())

	a, _, err := Acquire(ctx, conn, "acct", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	a.Release(ctx, conn)
	b, _, err := Acquire(ctx, conn, "acct", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if b.Fence <= a.Fence {
		t.Fatalf("expected fence to increase, got %d then %d", a.Fence, b.Fence)
	}
	if a.Owner == b.Owner {
		t.Fatal("expected distinct owners per attempt")
	}
}

func TestExpiredLockCannotBeReleasedByStaleHolder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	conn := memConn(t, mem)

	stale, ok, err := Acquire(ctx, conn, "acct", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	now = now.Add(2 * time.Second)
	fresh, ok, err := Acquire(ctx, conn, "acct", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected takeover after expiry, ok=%v err=%v", ok, err)
	}

	if err := stale.Release(ctx, conn); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected stale release to fail with ErrNotHeld, got %v", err)
	}
	token, _, _ := conn.Get(ctx, ledger.LockKey("acct"))
	if token != fresh.Value() {
		t.Fatalf("expected fresh holder to keep lock, got %q", token)
	}
}

func TestGuardRefusesWritesAfterTakeover(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	conn := memConn(t, mem)
	if err := conn.Set(ctx, ledger.BalanceKey("acct"), "100"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stale, _, err := Acquire(ctx, conn, "acct", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := conn.ExecIf(ctx, stale.Guard(), store.DecrBy(ledger.BalanceKey("acct"), 10)); err != nil {
		t.Fatalf("expected holder write to pass, got %v", err)
	}

	now = now.Add(2 * time.Second)
	fresh, ok, err := Acquire(ctx, conn, "acct", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected takeover after expiry, ok=%v err=%v", ok, err)
	}
	if _, err := conn.ExecIf(ctx, stale.Guard(), store.DecrBy(ledger.BalanceKey("acct"), 10)); !errors.Is(err, store.ErrGuardFailed) {
		t.Fatalf("expected stale write refused, got %v", err)
	}
	if _, err := conn.ExecIf(ctx, fresh.Guard(), store.DecrBy(ledger.BalanceKey("acct"), 10)); err != nil {
		t.Fatalf("expected fresh holder write to pass, got %v", err)
	}
	if val, _, _ := conn.Get(ctx, ledger.BalanceKey("acct")); val != "80" {
		t.Fatalf("expected balance 80, got %q", val)
	}
}

func TestAcquireAgainstRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	conn, err := store.NewRedisConnector(rdb).Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	held, ok, err := Acquire(ctx, conn, "acct", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("acct/lock"); ttl != 5*time.Second {
		t.Fatalf("expected 5s ttl on lock key, got %v", ttl)
	}
	if got, _ := mr.Get("acct/lock"); got != held.Value() {
		t.Fatalf("expected lock value %q, got %q", held.Value(), got)
	}

	mr.FastForward(6 * time.Second)
	if mr.Exists("acct/lock") {
		t.Fatal("expected lock to expire")
	}
}

// failingSetNX writes the lock but reports a failure, like a reply lost in transit.
type failingSetNX struct {
	store.Conn
	cleanupDeadline bool
}

func (f *failingSetNX) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if _, err := f.Conn.SetNX(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return false, &store.Error{Op: "setnx", Key: key, Err: errors.New("i/o timeout")}
}

func (f *failingSetNX) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	_, f.cleanupDeadline = ctx.Deadline()
	return f.Conn.CompareAndDelete(ctx, key, value)
}

func TestAcquireFailureCleansUpWithinDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := &failingSetNX{Conn: memConn(t, store.NewMemory())}

	if _, ok, err := Acquire(ctx, conn, "acct", time.Second); err == nil || ok {
		t.Fatalf("expected acquire failure, got ok=%v err=%v", ok, err)
	}
	if !conn.cleanupDeadline {
		t.Fatal("expected cleanup to run under a deadline")
	}
	if _, present, _ := conn.Get(ctx, ledger.LockKey("acct")); present {
		t.Fatal("expected half-written lock to be removed")
	}
}
