package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a concurrency-safe in-memory ledger store useful for unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	txns   map[int64][]Transaction
	refs   map[string]struct{}
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txns: make(map[int64][]Transaction),
		refs: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Append(_ context.Context, in AppendInput) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(in)
}

func (s *MemoryStore) appendLocked(in AppendInput) (Transaction, error) {
	if in.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	refKey := ""
	if in.Reference != "" {
		refKey = fmt.Sprintf("%d|%s", in.UserID, in.Reference)
		if _, exists := s.refs[refKey]; exists {
			return Transaction{}, ErrDuplicateReference
		}
	}

	current := s.latestLocked(in.UserID)

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

	s.nextID++
	txn := Transaction{
		ID:             s.nextID,
		UserID:         in.UserID,
		Amount:         in.Amount,
		Kind:           in.Kind,
		RunningBalance: newBalance,
		Description:    in.Description,
		Reference:      in.Reference,
		PackID:         in.PackID,
		CreatedAt:      time.Now().UTC(),
	}

	s.txns[in.UserID] = append(s.txns[in.UserID], txn)
	if refKey != "" {
		s.refs[refKey] = struct{}{}
	}
	return txn, nil
}

func (s *MemoryStore) Balance(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int64
	for _, txn := range s.txns[userID] {
		if txn.Kind == KindCredit {
			balance += txn.Amount
		} else {
			balance -= txn.Amount
		}
	}
	return balance, nil
}

func (s *MemoryStore) History(_ context.Context, userID int64, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.txns[userID]
	var history []Transaction
	for i := len(all) - 1 - offset; i >= 0 && len(history) < limit; i-- {
		history = append(history, all[i])
	}
	return history, nil
}

func (s *MemoryStore) latestLocked(userID int64) int64 {
	all := s.txns[userID]
	if len(all) == 0 {
		return 0
	}
	return all[len(all)-1].RunningBalance
}
