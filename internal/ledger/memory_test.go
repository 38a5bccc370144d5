package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreRunningBalance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	steps := []struct {
		kind    Kind
		amount  int64
		balance int64
	}{
		{KindCredit, 500, 500},
		{KindCredit, 250, 750},
		{KindDebit, 100, 650},
		{KindDebit, 650, 0},
	}

	for i, step := range steps {
		txn, err := store.Append(ctx, AppendInput{UserID: 1, Amount: step.amount, Kind: step.kind})
		if err != nil {
			t.Fatalf("step %d: append: %v", i, err)
		}
		if txn.RunningBalance != step.balance {
			t.Fatalf("step %d: running balance = %d, want %d", i, txn.RunningBalance, step.balance)
		}
	}

	balance, err := store.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("replayed balance = %d, want 0", balance)
	}
}

func TestMemoryStoreRejectsOverdraft(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, AppendInput{UserID: 1, Amount: 100, Kind: KindDebit}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("debit on empty ledger: got %v, want ErrInsufficientFunds", err)
	}

	if _, err := store.Append(ctx, AppendInput{UserID: 1, Amount: 50, Kind: KindCredit}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := store.Append(ctx, AppendInput{UserID: 1, Amount: 51, Kind: KindDebit}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft debit: got %v, want ErrInsufficientFunds", err)
	}
}

func TestMemoryStoreRejectsInvalidAmount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		if _, err := store.Append(ctx, AppendInput{UserID: 1, Amount: amount, Kind: KindCredit}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: got %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestMemoryStoreDuplicateReference(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	in := AppendInput{UserID: 1, Amount: 100, Kind: KindCredit, Reference: "pi_123"}
	if _, err := store.Append(ctx, in); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := store.Append(ctx, in); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("second append: got %v, want ErrDuplicateReference", err)
	}

	// The same reference is fine on a different user's ledger.
	other := in
	other.UserID = 2
	if _, err := store.Append(ctx, other); err != nil {
		t.Fatalf("other user append: %v", err)
	}
}

func TestMemoryStoreConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Append(ctx, AppendInput{UserID: 1, Amount: 100, Kind: KindCredit}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, AppendInput{UserID: 1, Amount: 30, Kind: KindDebit})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 {
		t.Fatalf("3 debits of 30 fit in 100, got %d successes", succeeded)
	}

	balance, err := store.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
}

func TestMemoryStoreHistoryNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := store.Append(ctx, AppendInput{UserID: 1, Amount: int64(i * 10), Kind: KindCredit}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := store.History(ctx, 1, 3, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Amount != 50 || history[2].Amount != 30 {
		t.Fatalf("history not newest first: %+v", history)
	}

	page2, err := store.History(ctx, 1, 3, 3)
	if err != nil {
		t.Fatalf("history offset: %v", err)
	}
	if len(page2) != 2 || page2[0].Amount != 20 {
		t.Fatalf("second page wrong: %+v", page2)
	}
}
