package orders

import "time"

type User struct {
	ID       int64
	Username string
	Email    string
}

type Order struct {
	ID               int64
	UserID           int64
	Lines            []Line
	TotalCents       int64
	Status           Status // lihat status.go
	PaymentMethod    PaymentMethod
	PaymentIntentRef string
	PaymentStatus    PaymentStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Line is a priced snapshot; later catalog changes never touch it.
type Line struct {
	FoodID     int64
	Quantity   int
	PriceCents int64
}

type ItemInput struct {
	FoodID   int64 `json:"food_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gte=1"`
}
