package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/packpulse/packpulse/internal/ledger"
	"github.com/packpulse/packpulse/internal/logging"
)

type fixture struct {
	svc    *Service
	store  *MemoryStore
	ledger *ledger.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledgerStore := ledger.NewMemoryStore()
	store := NewMemoryStore(ledgerStore)
	processor := ledger.NewProcessor(ledgerStore, nil, logging.Discard())
	svc := NewService(store, processor, nil, logging.Discard())
	return &fixture{svc: svc, store: store, ledger: ledgerStore}
}

func (f *fixture) credit(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := f.ledger.Append(context.Background(), ledger.AppendInput{
		UserID: userID, Amount: amount, Kind: ledger.KindCredit, Description: "Opening balance",
	})
	if err != nil {
		t.Fatalf("seed credit: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func listedPack(ownerID, price int64) Pack {
	return Pack{OwnerID: ownerID, Name: "Starter Pack", IsSealed: true, IsListed: true, Price: &price}
}

func TestPurchaseTransfersCreditsAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const seller, buyer = int64(1), int64(2)
	f.credit(t, seller, 50)
	f.credit(t, buyer, 300)
	packID := f.store.AddPack(listedPack(seller, 200))

	res, err := f.svc.PurchasePack(ctx, packID, buyer)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !res.Success || res.Message != MsgPurchased {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.SellerID != seller || res.Price != 200 {
		t.Fatalf("settlement details wrong: %+v", res)
	}

	if got := f.balance(t, buyer); got != 100 {
		t.Fatalf("buyer balance = %d, want 100", got)
	}
	if got := f.balance(t, seller); got != 250 {
		t.Fatalf("seller balance = %d, want 250", got)
	}

	pack, err := f.store.Get(ctx, packID)
	if err != nil {
		t.Fatalf("get pack: %v", err)
	}
	if pack.OwnerID != buyer {
		t.Fatalf("pack owner = %d, want buyer %d", pack.OwnerID, buyer)
	}
	if pack.IsListed || pack.Price != nil || pack.ListedAt != nil {
		t.Fatalf("pack should be unlisted after sale: %+v", pack)
	}
}

func TestPurchaseInsufficientCreditsLeavesPackListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const seller, buyer = int64(1), int64(2)
	f.credit(t, buyer, 150)
	packID := f.store.AddPack(listedPack(seller, 200))

	res, err := f.svc.PurchasePack(ctx, packID, buyer)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Success || res.Message != MsgInsufficientCredits {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Nothing moved.
	if got := f.balance(t, buyer); got != 150 {
		t.Fatalf("buyer balance = %d, want 150", got)
	}
	if got := f.balance(t, seller); got != 0 {
		t.Fatalf("seller balance = %d, want 0", got)
	}
	pack, _ := f.store.Get(ctx, packID)
	if !pack.IsListed || pack.OwnerID != seller {
		t.Fatalf("pack should stay listed with original owner: %+v", pack)
	}
}

func TestPurchaseUnavailablePack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credit(t, 2, 1000)

	price := int64(200)

	cases := []struct {
		name string
		pack Pack
	}{
		{"not listed", Pack{OwnerID: 1, Name: "Unlisted", IsSealed: true}},
		{"opened", Pack{OwnerID: 1, Name: "Opened", IsSealed: false, IsListed: true, Price: &price}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packID := f.store.AddPack(tc.pack)
			res, err := f.svc.PurchasePack(ctx, packID, 2)
			if err != nil {
				t.Fatalf("purchase: %v", err)
			}
			if res.Success || res.Message != MsgNotAvailable {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestPurchaseOwnPackRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.credit(t, 1, 1000)
	packID := f.store.AddPack(listedPack(1, 200))

	res, err := f.svc.PurchasePack(ctx, packID, 1)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Success || res.Message != MsgNotAvailable {
		t.Fatalf("buying your own pack must be rejected: %+v", res)
	}
	if got := f.balance(t, 1); got != 1000 {
		t.Fatalf("balance = %d, want untouched 1000", got)
	}
}

func TestPurchaseMissingPack(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PurchasePack(context.Background(), 999, 2)
	if !errors.Is(err, ErrPackNotFound) {
		t.Fatalf("got %v, want ErrPackNotFound", err)
	}
}

func TestConcurrentPurchaseSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const seller = int64(1)
	packID := f.store.AddPack(listedPack(seller, 200))

	const buyers = 10
	for i := int64(0); i < buyers; i++ {
		f.credit(t, 10+i, 500)
	}

	var wg sync.WaitGroup
	results := make(chan PurchaseResult, buyers)
	for i := int64(0); i < buyers; i++ {
		buyerID := 10 + i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.PurchasePack(ctx, packID, buyerID)
			if err != nil {
				t.Errorf("purchase by %d: %v", buyerID, err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	var winners int
	for res := range results {
		if res.Success {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d purchases succeeded, want exactly 1", winners)
	}

	if got := f.balance(t, seller); got != 200 {
		t.Fatalf("seller balance = %d, want 200 from a single sale", got)
	}
}

func TestListAndUnlistLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	packID := f.store.AddPack(Pack{OwnerID: 1, Name: "Sealed", IsSealed: true})

	if err := f.svc.ListPack(ctx, packID, 2, 100); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("list by non-owner: got %v, want ErrNotOwner", err)
	}
	if err := f.svc.ListPack(ctx, packID, 1, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("list with zero price: got %v, want ErrInvalidPrice", err)
	}
	if err := f.svc.ListPack(ctx, packID, 1, 100); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := f.svc.ListPack(ctx, packID, 1, 100); !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("double list: got %v, want ErrAlreadyListed", err)
	}

	packs, err := f.svc.Available(ctx, 0, 0)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(packs) != 1 || packs[0].ID != packID {
		t.Fatalf("available = %+v, want the listed pack", packs)
	}

	if err := f.svc.UnlistPack(ctx, packID, 1); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	if err := f.svc.UnlistPack(ctx, packID, 1); !errors.Is(err, ErrNotListed) {
		t.Fatalf("double unlist: got %v, want ErrNotListed", err)
	}

	opened := f.store.AddPack(Pack{OwnerID: 1, Name: "Opened", IsSealed: false})
	if err := f.svc.ListPack(ctx, opened, 1, 100); !errors.Is(err, ErrNotSealed) {
		t.Fatalf("list opened pack: got %v, want ErrNotSealed", err)
	}
}
