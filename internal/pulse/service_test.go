package pulse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/packpulse/packpulse/internal/ledger"
	"github.com/packpulse/packpulse/internal/logging"
)

func newTestService(t *testing.T) (*Service, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	processor := ledger.NewProcessor(store, nil, logging.Discard())
	svc := NewService(NewMemoryRepository(), processor, 500, 24*time.Hour, logging.Discard())
	return svc, store
}

func TestClaimGrantsOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	granted, err := svc.Claim(ctx, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !granted {
		t.Fatal("first claim should be granted")
	}

	balance, err := store.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 500 {
		t.Fatalf("balance = %d, want 500", balance)
	}

	history, err := store.History(ctx, 1, 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Description != "Daily Pulse Claim" {
		t.Fatalf("description = %q", history[0].Description)
	}

	// Second claim inside the cooldown is a soft rejection.
	granted, err = svc.Claim(ctx, 1)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if granted {
		t.Fatal("claim inside cooldown should be rejected")
	}

	balance, _ = store.Balance(ctx, 1)
	if balance != 500 {
		t.Fatalf("balance after rejected claim = %d, want 500", balance)
	}
}

func TestClaimEligibleAgainAfterCooldown(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if granted, err := svc.Claim(ctx, 1); err != nil || !granted {
		t.Fatalf("first claim: granted=%v err=%v", granted, err)
	}

	// One second short of the cooldown: still rejected.
	svc.now = func() time.Time { return base.Add(24*time.Hour - time.Second) }
	if granted, err := svc.Claim(ctx, 1); err != nil || granted {
		t.Fatalf("claim before cooldown elapsed: granted=%v err=%v", granted, err)
	}

	svc.now = func() time.Time { return base.Add(24 * time.Hour) }
	if granted, err := svc.Claim(ctx, 1); err != nil || !granted {
		t.Fatalf("claim at cooldown boundary: granted=%v err=%v", granted, err)
	}

	balance, _ := store.Balance(ctx, 1)
	if balance != 1000 {
		t.Fatalf("balance = %d, want 1000", balance)
	}
}

func TestConcurrentClaimsGrantExactlyOne(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	const claimers = 25
	var wg sync.WaitGroup
	grants := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, err := svc.Claim(ctx, 1)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			grants <- granted
		}()
	}
	wg.Wait()
	close(grants)

	var granted int
	for g := range grants {
		if g {
			granted++
		}
	}
	if granted != 1 {
		t.Fatalf("%d claims granted, want exactly 1", granted)
	}

	balance, _ := store.Balance(ctx, 1)
	if balance != 500 {
		t.Fatalf("balance = %d, want 500", balance)
	}
}

// failingProcessor simulates the ledger being unreachable.
type failingProcessor struct{}

func (failingProcessor) Apply(context.Context, ledger.AppendInput) (ledger.Transaction, error) {
	return ledger.Transaction{}, ledger.ErrUnavailable
}

func (failingProcessor) Balance(context.Context, int64) (int64, error) {
	return 0, ledger.ErrUnavailable
}

func TestClaimForfeitedWhenCreditFails(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, failingProcessor{}, 500, 24*time.Hour, logging.Discard())
	ctx := context.Background()

	granted, err := svc.Claim(ctx, 1)
	if granted {
		t.Fatal("claim should not report granted when the credit fails")
	}
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("got %v, want wrapped ErrUnavailable", err)
	}

	// The cooldown stays armed: the window's grant is forfeited rather than
	// risking a double grant on retry.
	canClaim, err := svc.CanClaim(ctx, 1)
	if err != nil {
		t.Fatalf("can claim: %v", err)
	}
	if canClaim {
		t.Fatal("cooldown should remain armed after a forfeited grant")
	}
}

func TestStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	st, err := svc.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.CanClaim || st.NextClaim != nil || st.Balance != 0 || st.Amount != 500 {
		t.Fatalf("fresh user status wrong: %+v", st)
	}

	if granted, err := svc.Claim(ctx, 1); err != nil || !granted {
		t.Fatalf("claim: granted=%v err=%v", granted, err)
	}

	st, err = svc.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status after claim: %v", err)
	}
	if st.CanClaim {
		t.Fatal("should be cooling down")
	}
	if st.NextClaim == nil || !st.NextClaim.Equal(base.Add(24*time.Hour)) {
		t.Fatalf("next claim = %v, want %v", st.NextClaim, base.Add(24*time.Hour))
	}
	if st.Balance != 500 {
		t.Fatalf("balance = %d, want 500", st.Balance)
	}
}
