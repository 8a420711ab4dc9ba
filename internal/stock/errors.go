package stock

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("food not found")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrItemUnavailable    = errors.New("food item is not available for order")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOptimisticConflict = errors.New("food item was modified by another transaction")
)

type UnavailableError struct {
	FoodID int64
	Status Status
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("food item %d is not available for order (status: %s)", e.FoodID, e.Status)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrItemUnavailable }

type InsufficientStockError struct {
	FoodID    int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for food %d: available %d, requested %d", e.FoodID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConflictError reports the version the losing writer had read. Err is set
// when the database aborted the write instead of missing the version.
type ConflictError struct {
	FoodID  int64
	Version int64
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("food %d write aborted at version %d: %v", e.FoodID, e.Version, e.Err)
	}
	return fmt.Sprintf("food %d changed since version %d", e.FoodID, e.Version)
}

func (e *ConflictError) Is(target error) bool { return target == ErrOptimisticConflict }

func (e *ConflictError) Unwrap() error { return e.Err }
