package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/congo-pay/charge_auth/internal/store"
)

var (
	// ErrAccountNotFound occurs when an account's balance key has never been
	// initialised by a reset.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidBalance indicates the stored balance is not an integer. The ledger
	// never guesses a replacement value.
	ErrInvalidBalance = errors.New("invalid balance")
)

// DefaultBalance is the opening balance an account receives on reset.
const DefaultBalance int64 = 100

// BalanceKey names the counter holding an account's balance.
func BalanceKey(account string) string { return account + "/balance" }

// LockKey names the advisory lock guarding an account's balance.
func LockKey(account string) string { return account + "/lock" }

// FenceKey names the counter that issues fencing tokens for an account's lock.
func FenceKey(account string) string { return account + "/fence" }

// ReadBalance fetches and parses the current balance for account.
func ReadBalance(ctx context.Context, conn store.Conn, account string) (int64, error) {
	key := BalanceKey(account)
	raw, ok, err := conn.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s holds %q: %w", key, raw, ErrInvalidBalance)
	}
	return balance, nil
}

// Reset unconditionally overwrites the balance for account.
func Reset(ctx context.Context, conn store.Conn, account string, amount int64) error {
	return conn.Set(ctx, BalanceKey(account), strconv.FormatInt(amount, 10))
}
