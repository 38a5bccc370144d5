package marketplace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/packpulse/packpulse/internal/ledger"
)

// MemoryStore is an in-memory pack store for tests and local development. It
// settles purchases against an in-memory ledger store.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	packs  map[int64]*Pack
	ledger *ledger.MemoryStore
}

// NewMemoryStore builds a memory pack store sharing the given ledger.
func NewMemoryStore(ledgerStore *ledger.MemoryStore) *MemoryStore {
	return &MemoryStore{packs: make(map[int64]*Pack), ledger: ledgerStore}
}

// AddPack seeds a pack and returns its id. Test helper.
func (s *MemoryStore) AddPack(p Pack) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p.ID = s.nextID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.packs[p.ID] = &p
	return p.ID
}

func (s *MemoryStore) Get(_ context.Context, packID int64) (Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packs[packID]
	if !ok {
		return Pack{}, ErrPackNotFound
	}
	return *p, nil
}

func (s *MemoryStore) Available(_ context.Context, limit, offset int) ([]Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listed []Pack
	for _, p := range s.packs {
		if p.CanBePurchased() {
			listed = append(listed, *p)
		}
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].ID > listed[j].ID })

	if offset >= len(listed) {
		return nil, nil
	}
	listed = listed[offset:]
	if limit > 0 && len(listed) > limit {
		listed = listed[:limit]
	}
	return listed, nil
}

func (s *MemoryStore) ListForSale(_ context.Context, packID, ownerID, price int64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packs[packID]
	if !ok {
		return ErrPackNotFound
	}
	if p.OwnerID != ownerID {
		return ErrNotOwner
	}
	if !p.IsSealed {
		return ErrNotSealed
	}
	if p.IsListed {
		return ErrAlreadyListed
	}

	now := time.Now().UTC()
	p.IsListed = true
	p.ListedAt = &now
	p.Price = &price
	return nil
}

func (s *MemoryStore) Unlist(_ context.Context, packID, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packs[packID]
	if !ok {
		return ErrPackNotFound
	}
	if p.OwnerID != ownerID {
		return ErrNotOwner
	}
	if !p.IsListed {
		return ErrNotListed
	}

	p.IsListed = false
	p.ListedAt = nil
	p.Price = nil
	return nil
}

func (s *MemoryStore) Purchase(ctx context.Context, packID, buyerID int64) (PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packs[packID]
	if !ok {
		return PurchaseResult{}, ErrPackNotFound
	}
	if !p.CanBePurchased() || p.OwnerID == buyerID {
		return PurchaseResult{Success: false, Message: MsgNotAvailable, PackID: packID, BuyerID: buyerID}, nil
	}

	price := *p.Price
	sellerID := p.OwnerID

	_, err := s.ledger.Append(ctx, ledger.AppendInput{
		UserID:      buyerID,
		Amount:      price,
		Kind:        ledger.KindDebit,
		Description: fmt.Sprintf("Purchase pack #%d", packID),
		PackID:      &packID,
	})
	if err != nil {
		if err == ledger.ErrInsufficientFunds {
			return PurchaseResult{Success: false, Message: MsgInsufficientCredits, PackID: packID, BuyerID: buyerID}, nil
		}
		return PurchaseResult{}, err
	}

	if _, err := s.ledger.Append(ctx, ledger.AppendInput{
		UserID:      sellerID,
		Amount:      price,
		Kind:        ledger.KindCredit,
		Description: fmt.Sprintf("Sold pack #%d", packID),
		PackID:      &packID,
	}); err != nil {
		return PurchaseResult{}, err
	}

	p.OwnerID = buyerID
	p.IsListed = false
	p.ListedAt = nil
	p.Price = nil

	return PurchaseResult{
		Success:  true,
		Message:  MsgPurchased,
		PackID:   packID,
		BuyerID:  buyerID,
		SellerID: sellerID,
		Price:    price,
	}, nil
}
