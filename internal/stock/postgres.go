package stock

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATEs for a transaction the server aborted because of a concurrent
// writer. Row-order deadlocks between checkouts show up as 40P01.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// PGStore reads and writes the foods table through Q, which is a pgx.Tx
// during checkout and the pool for plain catalog reads.
type PGStore struct{ Q postgres.Querier }

const selectFood = `SELECT id, name, category, price_cents, quantity, status, version,
       view_count, order_count, created_at, updated_at
  FROM foods`

func (s PGStore) Load(ctx context.Context, foodID int64) (Item, error) {
	var it Item
	var status string
	err := s.Q.QueryRow(ctx, selectFood+` WHERE id=$1`, foodID).Scan(
		&it.ID, &it.Name, &it.Category, &it.PriceCents, &it.Quantity, &status, &it.Version,
		&it.ViewCount, &it.OrderCount, &it.CreatedAt, &it.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	it.Status = Status(status)
	return it, nil
}

func (s PGStore) CompareAndSwap(ctx context.Context, foodID int64, quantity int, expected int64) (bool, error) {
	ct, err := s.Q.Exec(ctx, `
		UPDATE foods SET quantity=$2, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$3`, foodID, quantity, expected)
	if err != nil {
		if concurrentWriteAbort(err) {
			return false, &ConflictError{FoodID: foodID, Version: expected, Err: err}
		}
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func concurrentWriteAbort(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateDeadlockDetected || pgErr.Code == sqlstateSerializationFailure
}
