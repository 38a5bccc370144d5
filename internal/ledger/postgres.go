package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packpulse/packpulse/internal/infra"
)

// PostgresStore persists ledger rows in PostgreSQL. Per-user serialization is
// achieved by locking the owning user row for the duration of the append.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append posts a transaction in its own storage transaction.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (Transaction, error) {
	var txn Transaction
	err := infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.AppendIn(ctx, tx, in)
		if err != nil {
			return err
		}
		txn = t
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// AppendIn posts a transaction inside a caller-supplied storage transaction.
// It is the composition point for multi-party settlements that must commit
// several postings atomically.
func (s *PostgresStore) AppendIn(ctx context.Context, tx pgx.Tx, in AppendInput) (Transaction, error) {
	if in.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	if err := s.LockUsers(ctx, tx, in.UserID); err != nil {
		return Transaction{}, err
	}

	current, err := latestRunningBalance(ctx, tx, in.UserID)
	if err != nil {
		return Transaction{}, err
	}

	var newBalance int64
	switch in.Kind {
	case KindCredit:
		newBalance = current + in.Amount
	case KindDebit:
		newBalance = current - in.Amount
		if newBalance < 0 {
			return Transaction{}, ErrInsufficientFunds
		}
	default:
		return Transaction{}, fmt.Errorf("invalid transaction kind %q", in.Kind)
	}

	txn := Transaction{
		UserID:         in.UserID,
		Amount:         in.Amount,
		Kind:           in.Kind,
		RunningBalance: newBalance,
		Description:    in.Description,
		Reference:      in.Reference,
		PackID:         in.PackID,
	}

	const insert = `
        INSERT INTO credit_transactions (user_id, amount, kind, running_balance, description, reference, pack_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`

	err = tx.QueryRow(ctx, insert,
		in.UserID, in.Amount, string(in.Kind), newBalance,
		nullable(in.Description), nullable(in.Reference), in.PackID,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return txn, nil
}

// LockUsers takes row locks on the given user rows in ascending id order so
// concurrent multi-user settlements cannot deadlock on each other.
func (s *PostgresStore) LockUsers(ctx context.Context, tx pgx.Tx, userIDs ...int64) error {
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrUserNotFound, id)
			}
			return fmt.Errorf("lock user %d: %w", id, err)
		}
	}
	return nil
}

// Balance replays the full history: sum of credits minus sum of debits.
func (s *PostgresStore) Balance(ctx context.Context, userID int64) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(CASE WHEN kind = 'credit' THEN amount ELSE -amount END), 0)
        FROM credit_transactions
        WHERE user_id = $1`

	var balance int64
	if err := s.db.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return balance, nil
}

// History returns transactions newest first with plain offset pagination.
func (s *PostgresStore) History(ctx context.Context, userID int64, limit, offset int) ([]Transaction, error) {
	const query = `
        SELECT id, user_id, amount, kind, running_balance,
               COALESCE(description, ''), COALESCE(reference, ''), pack_id, created_at
        FROM credit_transactions
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []Transaction
	for rows.Next() {
		var t Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &kind, &t.RunningBalance,
			&t.Description, &t.Reference, &t.PackID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		t.Kind = Kind(kind)
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

func latestRunningBalance(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	const query = `
        SELECT running_balance
        FROM credit_transactions
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT 1`

	var balance int64
	if err := tx.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read latest balance: %w", err)
	}
	return balance, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
