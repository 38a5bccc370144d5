// Package marketplace implements pack listing and the atomic purchase
// settlement: buyer debit, seller credit, ownership transfer and history
// records commit as one unit or not at all.
package marketplace

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPackNotFound indicates the pack row does not exist.
	ErrPackNotFound = errors.New("pack not found")

	// ErrNotOwner indicates the caller does not own the pack.
	ErrNotOwner = errors.New("not owner of pack")

	// ErrNotSealed occurs when listing an unsealed pack.
	ErrNotSealed = errors.New("pack is not sealed")

	// ErrAlreadyListed occurs when listing a pack that is already on the marketplace.
	ErrAlreadyListed = errors.New("pack is already listed")

	// ErrNotListed occurs when unlisting a pack that is not on the marketplace.
	ErrNotListed = errors.New("pack is not listed")

	// ErrInvalidPrice occurs when listing with a non-positive price.
	ErrInvalidPrice = errors.New("price must be positive")
)

// User-facing settlement messages.
const (
	MsgNotAvailable        = "Pack is not available for purchase"
	MsgInsufficientCredits = "Insufficient credits"
	MsgPurchased           = "Pack purchased successfully"
)

// Pack is the marketplace view of a card pack.
type Pack struct {
	ID        int64
	OwnerID   int64
	Name      string
	IsSealed  bool
	IsListed  bool
	Price     *int64
	ListedAt  *time.Time
	CreatedAt time.Time
}

// CanBePurchased reports whether the pack is currently buyable.
func (p Pack) CanBePurchased() bool {
	return p.IsListed && p.IsSealed && p.Price != nil && *p.Price > 0
}

// PurchaseResult is the outcome of a settlement attempt.
type PurchaseResult struct {
	Success  bool
	Message  string
	PackID   int64
	BuyerID  int64
	SellerID int64
	Price    int64
}

// Store persists packs and executes the atomic purchase unit.
type Store interface {
	Get(ctx context.Context, packID int64) (Pack, error)

	// Available returns packs currently buyable, newest listing first.
	Available(ctx context.Context, limit, offset int) ([]Pack, error)

	// ListForSale puts a sealed, owner-held pack on the marketplace.
	ListForSale(ctx context.Context, packID, ownerID, price int64) error

	// Unlist takes the pack off the marketplace and clears its price.
	Unlist(ctx context.Context, packID, ownerID int64) error

	// Purchase runs the whole settlement as one atomic unit: re-check the
	// pack under lock, debit the buyer, credit the seller, transfer
	// ownership, record histories. A failed precondition or insufficient
	// balance yields Success=false with zero side effects.
	Purchase(ctx context.Context, packID, buyerID int64) (PurchaseResult, error)
}
