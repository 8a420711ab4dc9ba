package checkout

import (
	"context"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/stock"
)

// buildOrder reserves every line in the order given and returns a PENDING
// order priced from the reserved snapshots. Callers must run it inside the
// transaction that will persist the order.
func buildOrder(ctx context.Context, st stock.Store, req Request) (*orders.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	o := &orders.Order{
		UserID:           req.UserID,
		Status:           orders.StatusPending,
		PaymentMethod:    req.PaymentMethod,
		PaymentIntentRef: req.PaymentIntentRef,
		PaymentStatus:    orders.PaymentPending,
		Lines:            make([]orders.Line, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		food, err := stock.Reserve(ctx, st, it.FoodID, it.Quantity)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, orders.Line{FoodID: it.FoodID, Quantity: it.Quantity, PriceCents: food.PriceCents})
		o.TotalCents += food.PriceCents * int64(it.Quantity)
	}
	return o, nil
}
