package analytics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGSink struct{ DB *pgxpool.Pool }

// ApplyDeltas adds every delta to foods.view_count/order_count in a single
// statement. Ids that no longer exist are ignored.
func (s PGSink) ApplyDeltas(ctx context.Context, deltas []Delta) (int64, error) {
	if len(deltas) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(deltas))
	views := make([]int64, len(deltas))
	ordersN := make([]int64, len(deltas))
	for i, d := range deltas {
		ids[i], views[i], ordersN[i] = d.FoodID, d.Views, d.Orders
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE foods f
		   SET view_count  = f.view_count + d.views,
		       order_count = f.order_count + d.orders
		  FROM unnest($1::bigint[], $2::bigint[], $3::bigint[]) AS d(id, views, orders)
		 WHERE f.id = d.id`, ids, views, ordersN)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// FoodAnalytics is the durable, reconciled view of one food's counters.
type FoodAnalytics struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	ViewCount  int64  `json:"view_count"`
	OrderCount int64  `json:"order_count"`
}

func (s PGSink) ListFoodAnalytics(ctx context.Context) ([]FoodAnalytics, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, category, price_cents, view_count, order_count
		  FROM foods ORDER BY order_count DESC, view_count DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FoodAnalytics
	for rows.Next() {
		var a FoodAnalytics
		if err := rows.Scan(&a.ID, &a.Name, &a.Category, &a.PriceCents, &a.ViewCount, &a.OrderCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
