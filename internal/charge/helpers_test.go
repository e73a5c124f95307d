package charge

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/charge_auth/internal/journal"
	"github.com/congo-pay/charge_auth/internal/ledger"
	"github.com/congo-pay/charge_auth/internal/logging"
	"github.com/congo-pay/charge_auth/internal/notification"
	"github.com/congo-pay/charge_auth/internal/store"
)

type backend struct {
	name      string
	connector store.Connector
}

func backends(t *testing.T) []backend {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return []backend{
		{name: "memory", connector: store.NewMemory()},
		{name: "redis", connector: store.NewRedisConnector(rdb)},
	}
}

type recordingNotifier struct {
	events []notification.Event
}

func (n *recordingNotifier) Send(_ context.Context, event notification.Event) error {
	n.events = append(n.events, event)
	return nil
}

func newService(connector store.Connector) *Service {
	return NewService(connector, journal.NewMemory(), nil, logging.Discard(), Options{DefaultBalance: ledger.DefaultBalance, LockTTL: 10 * time.Second})
}

func withConn(t *testing.T, connector store.Connector, fn func(store.Conn)) {
	t.Helper()
	conn, err := connector.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	fn(conn)
}

func seedBalance(t *testing.T, connector store.Connector, account string, amount int64) {
	t.Helper()
	withConn(t, connector, func(conn store.Conn) {
		if err := ledger.Reset(context.Background(), conn, account, amount); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	})
}

func balanceOf(t *testing.T, connector store.Connector, account string) int64 {
	t.Helper()
	var balance int64
	withConn(t, connector, func(conn store.Conn) {
		b, err := ledger.ReadBalance(context.Background(), conn, account)
		if err != nil {
			t.Fatalf("read balance: %v", err)
		}
		balance = b
	})
	return balance
}

func assertUnlocked(t *testing.T, connector store.Connector, account string) {
	t.Helper()
	withConn(t, connector, func(conn store.Conn) {
		if token, ok, err := conn.Get(context.Background(), ledger.LockKey(account)); err != nil || ok {
			t.Fatalf("expected no lock on %s, got %q (err=%v)", account, token, err)
		}
	})
}

// interceptConnector lets tests splice behaviour in front of selected commands.
type interceptConnector struct {
	store.Connector
	exec func(ctx context.Context, next store.Conn, ops []store.Op) ([]int64, error)
	get  func(ctx context.Context, next store.Conn, key string) (string, bool, error)
}

func (i interceptConnector) Connect(ctx context.Context) (store.Conn, error) {
	conn, err := i.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &interceptConn{Conn: conn, hooks: i}, nil
}

type interceptConn struct {
	store.Conn
	hooks interceptConnector
}

func (c *interceptConn) Exec(ctx context.Context, ops ...store.Op) ([]int64, error) {
	if c.hooks.exec != nil {
		return c.hooks.exec(ctx, c.Conn, ops)
	}
	return c.Conn.Exec(ctx, ops...)
}

// ExecIf routes through the exec hook too; next.Exec inside the hook stays guarded.
func (c *interceptConn) ExecIf(ctx context.Context, guard store.Guard, ops ...store.Op) ([]int64, error) {
	if c.hooks.exec != nil {
		return c.hooks.exec(ctx, guardedConn{Conn: c.Conn, guard: guard}, ops)
	}
	return c.Conn.ExecIf(ctx, guard, ops...)
}

type guardedConn struct {
	store.Conn
	guard store.Guard
}

func (g guardedConn) Exec(ctx context.Context, ops ...store.Op) ([]int64, error) {
	return g.Conn.ExecIf(ctx, g.guard, ops...)
}

func (c *interceptConn) Get(ctx context.Context, key string) (string, bool, error) {
	if c.hooks.get != nil {
		return c.hooks.get(ctx, c.Conn, key)
	}
	return c.Conn.Get(ctx, key)
}

func isDebit(ops []store.Op, account string) bool {
	return len(ops) == 1 && ops[0].Key == ledger.BalanceKey(account) && ops[0].Delta < 0
}
