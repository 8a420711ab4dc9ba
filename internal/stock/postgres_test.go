package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execQuerier answers every Exec with tag and err.
type execQuerier struct {
	tag pgconn.CommandTag
	err error
}

func (q execQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return q.tag, q.err
}

func (q execQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q execQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestCompareAndSwapRowsAffected(t *testing.T) {
	ok, err := PGStore{Q: execQuerier{tag: pgconn.NewCommandTag("UPDATE 1")}}.CompareAndSwap(context.Background(), 1, 3, 7)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = PGStore{Q: execQuerier{tag: pgconn.NewCommandTag("UPDATE 0")}}.CompareAndSwap(context.Background(), 1, 3, 7)
	if err != nil || ok {
		t.Fatalf("stale version: ok=%v err=%v", ok, err)
	}
}

func TestCompareAndSwapAbortsAreConflicts(t *testing.T) {
	for _, code := range []string{"40P01", "40001"} {
		t.Run(code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: code, Message: "deadlock detected"}
			_, err := PGStore{Q: execQuerier{err: pgErr}}.CompareAndSwap(context.Background(), 1, 3, 7)
			if !errors.Is(err, ErrOptimisticConflict) {
				t.Fatalf("err = %v, want ErrOptimisticConflict", err)
			}
			var got *pgconn.PgError
			if !errors.As(err, &got) || got.Code != code {
				t.Fatalf("cause lost: %v", err)
			}
		})
	}
}

func TestCompareAndSwapOtherErrorsPassThrough(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", Message: "check constraint"}
	_, err := PGStore{Q: execQuerier{err: pgErr}}.CompareAndSwap(context.Background(), 1, -1, 7)
	if err == nil || errors.Is(err, ErrOptimisticConflict) {
		t.Fatalf("err = %v, want a plain database error", err)
	}
}

func TestReserveDeadlockIsRetryable(t *testing.T) {
	s := reserveStore{
		load: newMemStore(Item{ID: 1, Quantity: 5, Status: StatusActive}),
		cas:  PGStore{Q: execQuerier{err: &pgconn.PgError{Code: "40P01"}}},
	}
	_, err := Reserve(context.Background(), s, 1, 2)
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.FoodID != 1 {
		t.Fatalf("err = %v, want a ConflictError for food 1", err)
	}
}

// reserveStore splits reads and conditioned writes across two stores.
type reserveStore struct {
	load Store
	cas  Store
}

func (s reserveStore) Load(ctx context.Context, id int64) (Item, error) { return s.load.Load(ctx, id) }

func (s reserveStore) CompareAndSwap(ctx context.Context, id int64, qty int, expected int64) (bool, error) {
	return s.cas.CompareAndSwap(ctx, id, qty, expected)
}
