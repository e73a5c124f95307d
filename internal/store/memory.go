package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a concurrency-safe in-process store with the same semantics as the
// Redis connector. Useful for unit tests.
type Memory struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	now   func() time.Time
	open  atomic.Int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memoryEntry), now: time.Now}
}

// SetClock replaces the time source used for key expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// OpenConns reports how many connections have not been closed yet.
func (m *Memory) OpenConns() int64 { return m.open.Load() }

func (m *Memory) Connect(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	m.open.Add(1)
	return &memoryConn{m: m}, nil
}

// lookup must be called with m.mu held.
func (m *Memory) lookup(key string) (memoryEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return memoryEntry{}, false
	}
	return e, true
}

type memoryConn struct {
	m      *Memory
	closed atomic.Bool
}

func (c *memoryConn) check(ctx context.Context, op, key string) error {
	if c.closed.Load() {
		return &Error{Op: op, Key: key, Err: ErrClosed}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Op: op, Key: key, Err: err}
	}
	return nil
}

func (c *memoryConn) Get(ctx context.Context, key string) (string, bool, error) {
	if err := c.check(ctx, "get", key); err != nil {
		return "", false, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	e, ok := c.m.lookup(key)
	return e.value, ok, nil
}

func (c *memoryConn) Set(ctx context.Context, key, value string) error {
	if err := c.check(ctx, "set", key); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.data[key] = memoryEntry{value: value}
	return nil
}

func (c *memoryConn) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := c.check(ctx, "setnx", key); err != nil {
		return false, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if _, exists := c.m.lookup(key); exists {
		return false, nil
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.m.now().Add(ttl)
	}
	c.m.data[key] = e
	return true, nil
}

func (c *memoryConn) Delete(ctx context.Context, key string) error {
	if err := c.check(ctx, "del", key); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	delete(c.m.data, key)
	return nil
}

func (c *memoryConn) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := c.check(ctx, "cad", key); err != nil {
		return false, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	e, ok := c.m.lookup(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(c.m.data, key)
	return true, nil
}

func (c *memoryConn) Exec(ctx context.Context, ops ...Op) ([]int64, error) {
	if err := c.check(ctx, "exec", ""); err != nil {
		return nil, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.apply(ops)
}

func (c *memoryConn) ExecIf(ctx context.Context, guard Guard, ops ...Op) ([]int64, error) {
	if err := c.check(ctx, "exec", guard.Key); err != nil {
		return nil, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if e, ok := c.m.lookup(guard.Key); !ok || e.value != guard.Value {
		return nil, &Error{Op: "exec", Key: guard.Key, Err: ErrGuardFailed}
	}
	return c.m.apply(ops)
}

// apply must be called with m.mu held. Every op is staged first so a bad key
// leaves the store untouched.
func (m *Memory) apply(ops []Op) ([]int64, error) {
	staged := make(map[string]int64, len(ops))
	results := make([]int64, len(ops))
	for i, op := range ops {
		current, seen := staged[op.Key]
		if !seen {
			if e, ok := m.lookup(op.Key); ok {
				n, err := strconv.ParseInt(e.value, 10, 64)
				if err != nil {
					return nil, &Error{Op: "exec", Key: op.Key, Err: ErrNotInteger}
				}
				current = n
			}
		}
		current += op.Delta
		staged[op.Key] = current
		results[i] = current
	}

	for key, n := range staged {
		e, _ := m.lookup(key)
		m.data[key] = memoryEntry{value: strconv.FormatInt(n, 10), expiresAt: e.expiresAt}
	}
	return results, nil
}

func (c *memoryConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.m.open.Add(-1)
	}
	return nil
}
