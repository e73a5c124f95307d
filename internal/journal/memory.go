package journal

import (
	"context"
	"sync"
)

type memoryJournal struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemory constructs an in-process journal used when no database is configured.
func NewMemory() Journal {
	return &memoryJournal{entries: make(map[string][]Entry)}
}

func (j *memoryJournal) Record(_ context.Context, entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.Account] = append(j.entries[entry.Account], entry)
	return nil
}

func (j *memoryJournal) Recent(_ context.Context, account string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	stored := j.entries[account]
	out := make([]Entry, 0, min(limit, len(stored)))
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}
