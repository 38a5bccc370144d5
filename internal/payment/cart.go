package payment

import (
	"errors"
	"fmt"
)

// ErrInvalidCart flags malformed cart payloads.
var ErrInvalidCart = errors.New("invalid cart")

// minItemPrice is the smallest chargeable unit price in cents.
const minItemPrice = 50

// CartItem is one purchasable line item. Prices are in currency minor units.
type CartItem struct {
	ID        string
	Quantity  int
	UnitPrice int64
}

// Subtotal returns quantity times unit price.
func (i CartItem) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// Cart is an immutable collection of items to charge for.
type Cart struct {
	items []CartItem
}

// NewCart validates items and builds a cart.
func NewCart(items []CartItem) (Cart, error) {
	if len(items) == 0 {
		return Cart{}, fmt.Errorf("%w: no items", ErrInvalidCart)
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidCart)
		}
		if item.UnitPrice < minItemPrice {
			return Cart{}, fmt.Errorf("%w: price must be at least %d", ErrInvalidCart, minItemPrice)
		}
	}
	return Cart{items: append([]CartItem(nil), items...)}, nil
}

// Items returns the cart's line items.
func (c Cart) Items() []CartItem {
	return c.items
}

// Total returns the amount to charge in minor units.
func (c Cart) Total() int64 {
	var total int64
	for _, item := range c.items {
		total += item.Subtotal()
	}
	return total
}
