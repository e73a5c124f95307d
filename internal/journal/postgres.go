package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal persists charge attempts in PostgreSQL.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgres builds a journal backed by PostgreSQL.
func NewPostgres(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// EnsureSchema creates the journal table and index when missing.
func (j *PostgresJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS charge_journal (
        id UUID PRIMARY KEY,
        account TEXT NOT NULL,
        amount BIGINT NOT NULL,
        outcome TEXT NOT NULL,
        authorized BOOLEAN NOT NULL,
        remaining_balance BIGINT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return fmt.Errorf("create charge_journal: %w", err)
	}
	if _, err := j.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS charge_journal_account_created_idx
        ON charge_journal (account, created_at DESC)`); err != nil {
		return fmt.Errorf("create charge_journal index: %w", err)
	}
	return nil
}

// Record inserts a journal entry.
func (j *PostgresJournal) Record(ctx context.Context, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(ctx, `INSERT INTO charge_journal (id, account, amount, outcome, authorized, remaining_balance, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, entry.Account, entry.Amount, entry.Outcome, entry.Authorized, entry.RemainingBalance, entry.CreatedAt.UTC())
	return err
}

// Recent lists the newest entries for an account.
func (j *PostgresJournal) Recent(ctx context.Context, account string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.Query(ctx, `SELECT id, account, amount, outcome, authorized, remaining_balance, created_at
        FROM charge_journal WHERE account = $1 ORDER BY created_at DESC LIMIT $2`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		if err := rows.Scan(&id, &e.Account, &e.Amount, &e.Outcome, &e.Authorized, &e.RemainingBalance, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
