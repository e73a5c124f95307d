package charge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/charge_auth/internal/journal"
	"github.com/congo-pay/charge_auth/internal/ledger"
	"github.com/congo-pay/charge_auth/internal/lock"
	"github.com/congo-pay/charge_auth/internal/notification"
	"github.com/congo-pay/charge_auth/internal/store"
)

const defaultReleaseTimeout = 2 * time.Second

// Options tunes the charge protocol.
type Options struct {
	// DefaultBalance is written by Reset.
	DefaultBalance int64
	// LockTTL bounds how long a crashed charge can hold an account. Zero never expires.
	LockTTL time.Duration
	// ReleaseTimeout bounds lock release once the caller's context is gone.
	ReleaseTimeout time.Duration
}

// Service authorizes and debits charges against balances held in the store.
// It keeps no balance or lock state between calls.
type Service struct {
	store    store.Connector
	journal  journal.Journal
	notifier notification.Notifier
	logger   *slog.Logger
	opts     Options
}

// NewService constructs a charge service. journal and notifier may be nil.
func NewService(connector store.Connector, j journal.Journal, notifier notification.Notifier, logger *slog.Logger, opts Options) *Service {
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = defaultReleaseTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: connector, journal: j, notifier: notifier, logger: logger, opts: opts}
}

// Reset sets the account balance to the default opening value. It takes no
// lock, so it must not race in-flight charges on the same account.
func (s *Service) Reset(ctx context.Context, account string) error {
	if account == "" {
		return ErrInvalidAccount
	}
	conn, err := s.store.Connect(ctx)
	if err != nil {
		return err
	}
	defer s.disconnect(conn)

	if err := ledger.Reset(ctx, conn, account, s.opts.DefaultBalance); err != nil {
		return err
	}
	s.logger.Info("account reset", slog.String("account", account), slog.Int64("balance", s.opts.DefaultBalance))
	return nil
}

// Balance reads the current balance without locking.
func (s *Service) Balance(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, ErrInvalidAccount
	}
	conn, err := s.store.Connect(ctx)
	if err != nil {
		return 0, err
	}
	defer s.disconnect(conn)
	return ledger.ReadBalance(ctx, conn, account)
}

// History lists recent charge attempts for account, newest first.
func (s *Service) History(ctx context.Context, account string, limit int) ([]journal.Entry, error) {
	if account == "" {
		return nil, ErrInvalidAccount
	}
	if s.journal == nil {
		return []journal.Entry{}, nil
	}
	return s.journal.Recent(ctx, account, limit)
}

// Charge debits amount from account if, and only if, the account can afford it.
// Declines are reported through Result; an error means the store could not be
// used or the stored balance is unusable.
func (s *Service) Charge(ctx context.Context, account string, amount int64) (Result, error) {
	if account == "" {
		return Result{}, ErrInvalidAccount
	}
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	res, err := s.charge(ctx, account, amount)
	if err != nil {
		s.logger.Error("charge failed",
			slog.String("account", account),
			slog.Int64("amount", amount),
			slog.Any("error", err),
		)
		return Result{}, err
	}

	s.logger.Info("charge completed",
		slog.String("account", account),
		slog.Int64("amount", amount),
		slog.String("outcome", string(res.Outcome)),
		slog.Bool("authorized", res.IsAuthorized),
		slog.Int64("remaining_balance", res.RemainingBalance),
	)
	s.publish(ctx, account, amount, res)
	return res, nil
}

func (s *Service) charge(ctx context.Context, account string, amount int64) (Result, error) {
	conn, err := s.store.Connect(ctx)
	if err != nil {
		return Result{}, err
	}
	defer s.disconnect(conn)

	// Optimistic pre-check; the authoritative check is the post-debit read.
	starting, err := ledger.ReadBalance(ctx, conn, account)
	if err != nil {
		return Result{}, err
	}
	if starting < amount {
		return declined(OutcomeInsufficientFunds, starting), nil
	}

	held, acquired, err := lock.Acquire(ctx, conn, account, s.opts.LockTTL)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		// The balance reported here is the pre-check value and may be stale.
		return declined(OutcomeLockDenied, starting), nil
	}
	defer s.release(ctx, conn, held)

	balanceKey := ledger.BalanceKey(account)
	if _, err := conn.ExecIf(ctx, held.Guard(), store.DecrBy(balanceKey, amount)); err != nil {
		if errors.Is(err, store.ErrGuardFailed) {
			// The ttl elapsed and another attempt took over; nothing was debited.
			s.logger.Warn("lock lost before debit",
				slog.String("account", account),
				slog.Int64("fence", held.Fence),
			)
			return declined(OutcomeLockDenied, starting), nil
		}
		s.debitFailed(ctx, conn, held, starting, amount, err)
		return declined(OutcomeRolledBack, starting), nil
	}

	remaining, err := ledger.ReadBalance(ctx, conn, account)
	if err != nil {
		return Result{}, err
	}
	if remaining >= 0 {
		return Result{IsAuthorized: true, RemainingBalance: remaining, Charges: amount, Outcome: OutcomeCommitted}, nil
	}

	if _, err := conn.Exec(ctx, store.IncrBy(balanceKey, amount)); err != nil {
		return Result{}, fmt.Errorf("compensate overdraft on %s: %w", account, err)
	}
	s.logger.Warn("debit overshot balance, rolled back",
		slog.String("account", account),
		slog.Int64("amount", amount),
		slog.Int64("observed_balance", remaining),
		slog.Int64("fence", held.Fence),
	)
	return declined(OutcomeRolledBack, remaining), nil
}

// debitFailed logs a failed debit. The reply may have been lost after the
// store applied it, so the balance is read back and a mismatch is reported.
func (s *Service) debitFailed(ctx context.Context, conn store.Conn, held *lock.Lock, starting, amount int64, err error) {
	attrs := []any{
		slog.String("account", held.Account),
		slog.Int64("amount", amount),
		slog.Int64("fence", held.Fence),
		slog.Int64("starting_balance", starting),
		slog.Any("error", err),
	}

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ReleaseTimeout)
	defer cancel()
	observed, readErr := ledger.ReadBalance(readCtx, conn, held.Account)
	switch {
	case readErr != nil:
		s.logger.Error("debit transaction failed, balance unverified", append(attrs, slog.Any("read_error", readErr))...)
	case observed != starting:
		s.logger.Error("debit transaction failed but balance changed", append(attrs, slog.Int64("observed_balance", observed))...)
	default:
		s.logger.Error("debit transaction failed", attrs...)
	}
}

// release runs even when the caller's context has been cancelled.
func (s *Service) release(ctx context.Context, conn store.Conn, held *lock.Lock) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ReleaseTimeout)
	defer cancel()
	if err := held.Release(releaseCtx, conn); err != nil {
		s.logger.Error("release lock",
			slog.String("account", held.Account),
			slog.Int64("fence", held.Fence),
			slog.Any("error", err),
		)
	}
}

func (s *Service) disconnect(conn store.Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Warn("close store connection", slog.Any("error", err))
	}
}

// publish records the outcome in the journal and on the event bus. Failures are
// logged and never change the result handed back to the caller.
func (s *Service) publish(ctx context.Context, account string, amount int64, res Result) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()

	if s.journal != nil {
		entry := journal.Entry{
			ID:               uuid.NewString(),
			Account:          account,
			Amount:           amount,
			Outcome:          string(res.Outcome),
			Authorized:       res.IsAuthorized,
			RemainingBalance: res.RemainingBalance,
			CreatedAt:        now,
		}
		if err := s.journal.Record(ctx, entry); err != nil {
			s.logger.Warn("journal charge", slog.String("account", account), slog.Any("error", err))
		}
	}

	if s.notifier != nil {
		kind := notification.KindChargeDeclined
		if res.IsAuthorized {
			kind = notification.KindChargeAuthorized
		}
		event := notification.Event{
			Kind:             kind,
			Account:          account,
			Amount:           amount,
			RemainingBalance: res.RemainingBalance,
			Outcome:          string(res.Outcome),
			OccurredAt:       now,
		}
		if err := s.notifier.Send(ctx, event); err != nil {
			s.logger.Warn("notify charge", slog.String("account", account), slog.Any("error", err))
		}
	}
}
