package stock

import "time"

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Item is one catalog food with its stock position.
type Item struct {
	ID         int64
	Name       string
	Category   string
	PriceCents int64
	Quantity   int
	Status     Status
	Version    int64 // optimistic locking
	ViewCount  int64
	OrderCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
