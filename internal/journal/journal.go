package journal

import (
	"context"
	"time"
)

// DefaultLimit caps Recent when the caller does not ask for a size.
const DefaultLimit = 20

// Entry records the terminal outcome of one charge attempt.
type Entry struct {
	ID               string    `json:"id"`
	Account          string    `json:"account"`
	Amount           int64     `json:"amount"`
	Outcome          string    `json:"outcome"`
	Authorized       bool      `json:"authorized"`
	RemainingBalance int64     `json:"remaining_balance"`
	CreatedAt        time.Time `json:"created_at"`
}

// Journal is an append-only history of charge attempts.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
	// Recent returns up to limit entries for account, newest first.
	Recent(ctx context.Context, account string, limit int) ([]Entry, error)
}
