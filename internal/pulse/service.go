// Package pulse implements the daily credit grant and its cooldown state
// machine. A user is either eligible or cooling down; the transition happens
// only as part of a successful claim.
package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/packpulse/packpulse/internal/ledger"
	"github.com/packpulse/packpulse/internal/metrics"
)

const claimDescription = "Daily Pulse Claim"

// CreditProcessor is the slice of the transaction processor the claim service
// needs. *ledger.Processor satisfies it.
type CreditProcessor interface {
	Apply(ctx context.Context, in ledger.AppendInput) (ledger.Transaction, error)
	Balance(ctx context.Context, userID int64) (int64, error)
}

// Service gates one fixed-amount credit grant per user per cooldown window.
type Service struct {
	users     UserRepository
	processor CreditProcessor
	amount    int64
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds a claim service with the given grant amount and cooldown.
func NewService(users UserRepository, processor CreditProcessor, amount int64, cooldown time.Duration, logger *slog.Logger) *Service {
	return &Service{
		users:     users,
		processor: processor,
		amount:    amount,
		cooldown:  cooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Amount returns the fixed grant per claim.
func (s *Service) Amount() int64 {
	return s.amount
}

// Claim attempts to grant the daily credit. It returns false with a nil error
// when the user is still cooling down.
//
// The conditional timestamp update is the concurrency guard: of N concurrent
// claims at most one row update succeeds. If the subsequent credit fails the
// timestamp stays advanced and that window's grant is forfeited, preferring a
// lost grant over any chance of a double one.
func (s *Service) Claim(ctx context.Context, userID int64) (bool, error) {
	now := s.now()

	claimed, err := s.users.MarkClaimed(ctx, userID, now, now.Add(-s.cooldown))
	if err != nil {
		metrics.PulseClaims.WithLabelValues(metrics.OutcomeError).Inc()
		return false, fmt.Errorf("mark claim: %w", err)
	}
	if !claimed {
		s.logger.Info("pulse claim rejected, still cooling down", "user_id", userID)
		metrics.PulseClaims.WithLabelValues(metrics.OutcomeRejected).Inc()
		return false, nil
	}

	reference := "pulse_" + now.UTC().Format("2006-01-02")
	_, err = s.processor.Apply(ctx, ledger.AppendInput{
		UserID:      userID,
		Amount:      s.amount,
		Kind:        ledger.KindCredit,
		Description: claimDescription,
		Reference:   reference,
	})
	if err != nil {
		// The timestamp is already advanced and is not rolled back: this
		// window's grant is forfeited instead of risking a double grant.
		s.logger.Error("pulse credit failed after claim was marked, grant forfeited",
			"user_id", userID, "amount", s.amount, "reference", reference, "error", err)
		metrics.PulseClaims.WithLabelValues(metrics.OutcomeError).Inc()
		return false, fmt.Errorf("credit pulse grant: %w", err)
	}

	s.logger.Info("pulse claimed", "user_id", userID, "amount", s.amount, "reference", reference)
	metrics.PulseClaims.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return true, nil
}

// CanClaim reports whether the user is currently eligible. Pure read, safe to
// poll.
func (s *Service) CanClaim(ctx context.Context, userID int64) (bool, error) {
	last, err := s.users.LastClaim(ctx, userID)
	if err != nil {
		return false, err
	}
	return last == nil || s.now().Sub(*last) >= s.cooldown, nil
}

// NextClaimTime returns when the user becomes eligible again, or nil if the
// user never claimed. Pure read, safe to poll.
func (s *Service) NextClaimTime(ctx context.Context, userID int64) (*time.Time, error) {
	last, err := s.users.LastClaim(ctx, userID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	next := last.Add(s.cooldown)
	return &next, nil
}

// Status aggregates the claim state for status/poll endpoints.
type Status struct {
	CanClaim  bool
	NextClaim *time.Time
	Amount    int64
	Balance   int64
}

// Status returns the user's claim eligibility together with the current
// credit balance.
func (s *Service) Status(ctx context.Context, userID int64) (Status, error) {
	last, err := s.users.LastClaim(ctx, userID)
	if err != nil {
		return Status{}, err
	}

	st := Status{Amount: s.amount}
	if last == nil {
		st.CanClaim = true
	} else {
		next := last.Add(s.cooldown)
		st.NextClaim = &next
		st.CanClaim = !s.now().Before(next)
	}

	balance, err := s.processor.Balance(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("read balance: %w", err)
	}
	st.Balance = balance

	return st, nil
}
