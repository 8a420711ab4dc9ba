package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope is one open transaction plus the callbacks queued to run after it commits.
type Scope struct {
	Tx          pgx.Tx
	afterCommit []func()
}

// AfterCommit queues fn. Queued callbacks run in order, only if Commit succeeds.
func (s *Scope) AfterCommit(fn func()) {
	s.afterCommit = append(s.afterCommit, fn)
}

// WithTx runs fn in a read-committed transaction. Any error from fn rolls back.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, s *Scope) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := &Scope{Tx: tx}
	if err := fn(ctx, s); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, cb := range s.afterCommit {
		cb()
	}
	return nil
}
