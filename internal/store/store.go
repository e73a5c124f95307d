// Package store is the key-value capability the charge protocol runs against.
// A Connector hands out one Conn per operation; the Conn must be closed on every
// exit path so connections are never leaked.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by a Conn used after Close.
	ErrClosed = errors.New("connection closed")

	// ErrTxFailed indicates the store refused to commit a transaction.
	ErrTxFailed = errors.New("transaction failed")

	// ErrNotInteger is returned when a counter operation targets a non-numeric value.
	ErrNotInteger = errors.New("value is not an integer")

	// ErrGuardFailed is returned by ExecIf when the guard key no longer holds
	// the expected value. Nothing was applied.
	ErrGuardFailed = errors.New("guard value changed")
)

// Error wraps any failure to talk to the store. Callers detect it with errors.As.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Op is a single counter mutation executed inside a transaction.
type Op struct {
	Key   string
	Delta int64
}

// IncrBy adds n to the counter at key.
func IncrBy(key string, n int64) Op { return Op{Key: key, Delta: n} }

// DecrBy subtracts n from the counter at key.
func DecrBy(key string, n int64) Op { return Op{Key: key, Delta: -n} }

// Guard makes a transaction conditional on Key still holding Value.
type Guard struct {
	Key   string
	Value string
}

// Conn is a single scoped session with the store. Commands on one Conn are
// executed in the order they are issued.
type Conn interface {
	// Get returns the value at key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// SetNX creates key only if it does not exist and reports whether this call created it.
	// A zero ttl means the key never expires.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// Exec applies ops atomically and in order, returning each counter's new value.
	Exec(ctx context.Context, ops ...Op) ([]int64, error)
	// ExecIf behaves like Exec but only while guard holds, checked atomically with the ops.
	ExecIf(ctx context.Context, guard Guard, ops ...Op) ([]int64, error)
	Close() error
}

// Connector opens store sessions.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}
