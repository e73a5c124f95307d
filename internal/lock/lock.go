// Package lock implements the per-account advisory lock that serialises debits.
//
// A lock is a single key whose value identifies the holder as "<fence>:<owner>".
// The fence is a strictly increasing counter issued by the store on every
// acquisition attempt, so a stale holder can always be told apart from the
// current one. Writes made under the lock go through Guard, so they are
// refused once the token has changed. A ttl bounds how long a crashed holder can keep an account
// stuck; zero disables expiry.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/charge_auth/internal/ledger"
	"github.com/congo-pay/charge_auth/internal/store"
)

// cleanupTimeout bounds the best-effort removal of a lock whose write failed.
const cleanupTimeout = 2 * time.Second

// ErrNotHeld is returned by Release when the key no longer belongs to the
// caller, typically because its ttl elapsed and another attempt took over.
var ErrNotHeld = errors.New("lock not held")

// Lock is a held advisory lock.
type Lock struct {
	Account string
	Key     string
	Fence   int64
	Owner   string
}

// Value is the token stored under the lock key.
func (l *Lock) Value() string {
	return fmt.Sprintf("%d:%s", l.Fence, l.Owner)
}

// Acquire attempts to create the lock key for account. acquired is false when
// another attempt already holds it.
func Acquire(ctx context.Context, conn store.Conn, account string, ttl time.Duration) (*Lock, bool, error) {
	fences, err := conn.Exec(ctx, store.IncrBy(ledger.FenceKey(account), 1))
	if err != nil {
		return nil, false, err
	}

	l := &Lock{
		Account: account,
		Key:     ledger.LockKey(account),
		Fence:   fences[0],
		Owner:   uuid.NewString(),
	}

	created, err := conn.SetNX(ctx, l.Key, l.Value(), ttl)
	if err != nil {
		// The write may have landed before the failure; drop it if it is ours.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		_, _ = conn.CompareAndDelete(cleanupCtx, l.Key, l.Value())
		cancel()
		return nil, false, err
	}
	if !created {
		return nil, false, nil
	}
	return l, true, nil
}

// Guard conditions a store transaction on this lock still being held.
func (l *Lock) Guard() store.Guard {
	return store.Guard{Key: l.Key, Value: l.Value()}
}

// Release removes the lock only if it still carries this holder's token.
func (l *Lock) Release(ctx context.Context, conn store.Conn) error {
	deleted, err := conn.CompareAndDelete(ctx, l.Key, l.Value())
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%s fence %d: %w", l.Key, l.Fence, ErrNotHeld)
	}
	return nil
}
