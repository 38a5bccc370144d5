package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/packpulse/packpulse/internal/metrics"
)

// maxAppendAttempts bounds retries on transient storage conflicts.
const maxAppendAttempts = 3

// Processor validates and posts ledger transactions, keeping the balance
// cache in step with the store. The store is the source of truth; cache
// failures are logged and never fail the operation.
type Processor struct {
	store  Store
	cache  BalanceCache
	logger *slog.Logger
}

// NewProcessor builds a transaction processor. A nil cache degrades to
// replaying the ledger on every balance read.
func NewProcessor(store Store, cache BalanceCache, logger *slog.Logger) *Processor {
	if cache == nil {
		cache = NopCache{}
	}
	return &Processor{store: store, cache: cache, logger: logger}
}

// Apply posts a single transaction. Business-rule failures (invalid amount,
// insufficient funds, duplicate reference) are returned immediately;
// transient storage conflicts are retried a bounded number of times.
func (p *Processor) Apply(ctx context.Context, in AppendInput) (Transaction, error) {
	if in.Amount <= 0 {
		metrics.TransactionsApplied.WithLabelValues(string(in.Kind), metrics.OutcomeRejected).Inc()
		return Transaction{}, ErrInvalidAmount
	}
	if in.Kind != KindCredit && in.Kind != KindDebit {
		metrics.TransactionsApplied.WithLabelValues(string(in.Kind), metrics.OutcomeRejected).Inc()
		return Transaction{}, fmt.Errorf("invalid transaction kind %q", in.Kind)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		txn, err := p.store.Append(ctx, in)
		if err == nil {
			p.pushBalance(ctx, txn)
			metrics.TransactionsApplied.WithLabelValues(string(in.Kind), metrics.OutcomeSuccess).Inc()
			return txn, nil
		}

		if isBusinessError(err) {
			metrics.TransactionsApplied.WithLabelValues(string(in.Kind), metrics.OutcomeRejected).Inc()
			return Transaction{}, err
		}

		lastErr = err
		if !isTransient(err) {
			break
		}
		p.logger.Warn("transient ledger conflict, retrying",
			"user_id", in.UserID, "kind", in.Kind, "amount", in.Amount, "attempt", attempt, "error", err)
	}

	p.logger.Error("ledger append failed",
		"user_id", in.UserID, "kind", in.Kind, "amount", in.Amount, "error", lastErr)
	metrics.TransactionsApplied.WithLabelValues(string(in.Kind), metrics.OutcomeError).Inc()
	return Transaction{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Balance prefers the cache; on a miss it replays the ledger and repopulates
// the cache.
func (p *Processor) Balance(ctx context.Context, userID int64) (int64, error) {
	if balance, ok := p.cache.TryGet(ctx, userID); ok {
		return balance, nil
	}
	metrics.CacheMisses.Inc()

	balance, err := p.store.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("replay balance: %w", err)
	}

	if err := p.cache.Set(ctx, userID, balance); err != nil {
		p.logger.Warn("balance cache repopulate failed", "user_id", userID, "error", err)
	}
	return balance, nil
}

// History returns the user's transactions newest first.
func (p *Processor) History(ctx context.Context, userID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return p.store.History(ctx, userID, limit, offset)
}

// InvalidateBalances drops cached balances, best effort.
func (p *Processor) InvalidateBalances(ctx context.Context, userIDs ...int64) {
	if err := p.cache.Invalidate(ctx, userIDs...); err != nil {
		p.logger.Warn("balance cache invalidate failed", "user_ids", userIDs, "error", err)
	}
}

func (p *Processor) pushBalance(ctx context.Context, txn Transaction) {
	if err := p.cache.Set(ctx, txn.UserID, txn.RunningBalance); err != nil {
		p.logger.Warn("balance cache push failed", "user_id", txn.UserID, "error", err)
	}
}

func isBusinessError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateReference) ||
		errors.Is(err, ErrUserNotFound)
}

// isTransient reports whether the error is a serialization failure or
// deadlock that is safe to retry.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}
