package checkout

import (
	"errors"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/stock"
)

var (
	ErrEmptyOrder           = errors.New("order must contain at least one item")
	ErrInvalidPaymentMethod = errors.New("payment method must be cash or card")
	ErrPaymentFailed        = errors.New("payment failed, please try again")
	ErrHighDemand           = errors.New("unable to complete your order due to high demand, please try again")
	ErrOrderCreationFailed  = errors.New("unable to process your order at this time, please try again later")
)

// IsClientError reports errors caused by the request itself. They are
// returned verbatim and never retried.
func IsClientError(err error) bool {
	for _, target := range []error{
		orders.ErrNotFound,
		stock.ErrNotFound,
		ErrEmptyOrder,
		ErrInvalidPaymentMethod,
		stock.ErrInvalidQuantity,
		stock.ErrItemUnavailable,
		stock.ErrInsufficientStock,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
