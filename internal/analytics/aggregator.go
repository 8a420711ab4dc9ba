package analytics

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"go.uber.org/zap"
)

type Metric string

const (
	MetricView  Metric = "view"
	MetricOrder Metric = "order"
)

// CounterStore is a key-value store with atomic increment, get-and-delete
// and pattern scan.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, delta int64) error
	GetDel(ctx context.Context, key string) (value int64, found bool, err error)
	Scan(ctx context.Context, pattern string, fn func(key string) error) error
}

// Aggregator buffers view and order counts in the fast store. It never
// touches the relational store.
type Aggregator struct {
	Store CounterStore
	Log   *zap.Logger
}

func (a *Aggregator) IncrementView(ctx context.Context, foodID int64) error {
	if err := a.Store.IncrBy(ctx, fmt.Sprintf(redisx.KeyViewCount, foodID), 1); err != nil {
		return fmt.Errorf("increment view count for food %d: %w", foodID, err)
	}
	a.Log.Debug("incremented view count", zap.Int64("food_id", foodID))
	return nil
}

func (a *Aggregator) IncrementOrder(ctx context.Context, foodID int64, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	if err := a.Store.IncrBy(ctx, fmt.Sprintf(redisx.KeyOrderCount, foodID), int64(quantity)); err != nil {
		return fmt.Errorf("increment order count for food %d: %w", foodID, err)
	}
	a.Log.Debug("incremented order count", zap.Int64("food_id", foodID), zap.Int("quantity", quantity))
	return nil
}
