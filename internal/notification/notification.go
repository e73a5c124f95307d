package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindChargeAuthorized is emitted when a debit commits.
	KindChargeAuthorized = "authorized"
	// KindChargeDeclined is emitted for every declined charge.
	KindChargeDeclined = "declined"

	subjectPrefix = "charges."
)

// Event describes the outcome of a charge attempt.
type Event struct {
	Kind             string    `json:"kind"`
	Account          string    `json:"account"`
	Amount           int64     `json:"amount"`
	RemainingBalance int64     `json:"remaining_balance"`
	Outcome          string    `json:"outcome"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Subject is the bus subject the event is published on.
func (e Event) Subject() string {
	return subjectPrefix + e.Kind
}

// Notifier delivers charge events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger. Used when no bus is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("charge event",
		slog.String("subject", event.Subject()),
		slog.String("account", event.Account),
		slog.Int64("amount", event.Amount),
		slog.Int64("remaining_balance", event.RemainingBalance),
		slog.String("outcome", event.Outcome),
	)
	return nil
}
