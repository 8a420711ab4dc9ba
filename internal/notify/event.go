package notify

import (
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
)

// OrderCommitted is raised once an order transaction has durably committed.
type OrderCommitted struct {
	OrderID       int64
	UserID        int64
	TotalCents    int64
	Lines         []orders.Line
	PaymentMethod orders.PaymentMethod
	TraceID       string
	CommittedAt   time.Time
}

func FromOrder(o *orders.Order) OrderCommitted {
	lines := make([]orders.Line, len(o.Lines))
	copy(lines, o.Lines)
	return OrderCommitted{
		OrderID:       o.ID,
		UserID:        o.UserID,
		TotalCents:    o.TotalCents,
		Lines:         lines,
		PaymentMethod: o.PaymentMethod,
		CommittedAt:   time.Now().UTC(),
	}
}
