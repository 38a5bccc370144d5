package pulse

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu     sync.Mutex
	claims map[int64]time.Time
}

// NewMemoryRepository constructs an in-memory claim repository for tests and
// local development. Unknown users are treated as never having claimed.
func NewMemoryRepository() UserRepository {
	return &memoryRepository{claims: make(map[int64]time.Time)}
}

func (r *memoryRepository) LastClaim(_ context.Context, userID int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.claims[userID]; ok {
		return &last, nil
	}
	return nil, nil
}

func (r *memoryRepository) MarkClaimed(_ context.Context, userID int64, claimedAt, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.claims[userID]; ok && last.After(cutoff) {
		return false, nil
	}
	r.claims[userID] = claimedAt
	return true, nil
}
