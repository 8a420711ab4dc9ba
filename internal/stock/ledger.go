package stock

import (
	"context"
	"fmt"
)

// Store is the ledger's view of storage, bound to the caller's transaction.
type Store interface {
	Load(ctx context.Context, foodID int64) (Item, error)
	// CompareAndSwap writes quantity and bumps the version iff the stored
	// version still equals expected. It reports whether a row was written.
	CompareAndSwap(ctx context.Context, foodID int64, quantity int, expected int64) (bool, error)
}

// Reserve takes qty units of foodID. The returned item carries the new
// quantity and version; its price is the snapshot to charge.
func Reserve(ctx context.Context, s Store, foodID int64, qty int) (Item, error) {
	if qty < 1 {
		return Item{}, fmt.Errorf("food %d: %w", foodID, ErrInvalidQuantity)
	}
	it, err := s.Load(ctx, foodID)
	if err != nil {
		return Item{}, err
	}
	if it.Status != StatusActive {
		return Item{}, &UnavailableError{FoodID: foodID, Status: it.Status}
	}
	if it.Quantity < qty {
		return Item{}, &InsufficientStockError{FoodID: foodID, Available: it.Quantity, Requested: qty}
	}

	ok, err := s.CompareAndSwap(ctx, foodID, it.Quantity-qty, it.Version)
	if err != nil {
		return Item{}, fmt.Errorf("reserve food %d: %w", foodID, err)
	}
	if !ok {
		return Item{}, &ConflictError{FoodID: foodID, Version: it.Version}
	}
	it.Quantity -= qty
	it.Version++
	return it, nil
}
