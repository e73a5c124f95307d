package charge

import "errors"

var (
	// ErrInvalidAccount is returned when no account identifier is supplied.
	ErrInvalidAccount = errors.New("account is required")

	// ErrInvalidAmount is returned for zero or negative charges.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Outcome names the terminal state a charge attempt ended in.
type Outcome string

const (
	OutcomeCommitted         Outcome = "committed"
	OutcomeRolledBack        Outcome = "rolled_back"
	OutcomeLockDenied        Outcome = "lock_denied"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
)

// Result is returned for every charge that reached a decision, authorized or not.
type Result struct {
	IsAuthorized     bool    `json:"isAuthorized"`
	RemainingBalance int64   `json:"remainingBalance"`
	Charges          int64   `json:"charges"`
	Outcome          Outcome `json:"-"`
}

func declined(outcome Outcome, balance int64) Result {
	return Result{IsAuthorized: false, RemainingBalance: balance, Charges: 0, Outcome: outcome}
}
