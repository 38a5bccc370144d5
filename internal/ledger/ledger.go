// Package ledger implements the per-user append-only credit transaction log.
// The log is the single source of truth for balances; every row carries the
// running balance as of that transaction.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidAmount occurs when a transaction is requested with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds occurs when a debit would push the running balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates the provided correlation reference was
	// already used for this user, so the posting must be treated as already done.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrUserNotFound indicates the target user row does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnavailable is returned once bounded retries on transient storage
	// conflicts are exhausted.
	ErrUnavailable = errors.New("ledger temporarily unavailable")
)

// Kind discriminates credits from debits.
type Kind string

const (
	// KindCredit increases the running balance.
	KindCredit Kind = "credit"
	// KindDebit decreases the running balance.
	KindDebit Kind = "debit"
)

// Transaction is one immutable row of the credit ledger.
type Transaction struct {
	ID             int64
	UserID         int64
	Amount         int64
	Kind           Kind
	RunningBalance int64
	Description    string
	Reference      string
	PackID         *int64
	CreatedAt      time.Time
}

// AppendInput captures the data required to post one transaction.
type AppendInput struct {
	UserID      int64
	Amount      int64
	Kind        Kind
	Description string
	// Reference is an optional correlation token (payment intent id,
	// pulse_<date>, ...). When set it must be unique per user.
	Reference string
	PackID    *int64
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
type Store interface {
	// Append posts a single transaction atomically: the user's latest running
	// balance is read under a per-user lock and the new row written in the
	// same storage transaction.
	Append(ctx context.Context, in AppendInput) (Transaction, error)

	// Balance recomputes the balance by replaying the user's full history
	// (credits minus debits). It never consults any cache.
	Balance(ctx context.Context, userID int64) (int64, error)

	// History returns the user's transactions newest first.
	History(ctx context.Context, userID int64, limit, offset int) ([]Transaction, error)
}
