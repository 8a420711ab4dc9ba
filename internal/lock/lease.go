package lock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lease mirrors one scheduler_locks row.
type Lease struct {
	Name        string
	LockedUntil time.Time
	LockedAt    time.Time
	LockedBy    string
}

func (l Lease) Expired(now time.Time) bool { return !now.Before(l.LockedUntil) }

// PGLocker is a lease lock over the scheduler_locks table. The holder id
// must be unique per process.
type PGLocker struct {
	DB     *pgxpool.Pool
	Holder string
}

// TryAcquire inserts the lease or takes over an expired one in a single
// conditional upsert; the database clock decides expiry.
func (l *PGLocker) TryAcquire(ctx context.Context, name string, atMost time.Duration) (bool, error) {
	ct, err := l.DB.Exec(ctx, `
		INSERT INTO scheduler_locks(name, locked_until, locked_at, locked_by)
		VALUES ($1, now() + $2::interval, now(), $3)
		ON CONFLICT (name) DO UPDATE
		   SET locked_until = EXCLUDED.locked_until,
		       locked_at    = EXCLUDED.locked_at,
		       locked_by    = EXCLUDED.locked_by
		 WHERE scheduler_locks.locked_until <= now()`,
		name, atMost, l.Holder)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Release shortens our lease to max(now, locked_at + atLeast).
func (l *PGLocker) Release(ctx context.Context, name string, atLeast time.Duration) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE scheduler_locks
		   SET locked_until = GREATEST(now(), locked_at + $2::interval)
		 WHERE name = $1 AND locked_by = $3`,
		name, atLeast, l.Holder)
	return err
}

func (l *PGLocker) Get(ctx context.Context, name string) (Lease, bool, error) {
	var le Lease
	err := l.DB.QueryRow(ctx, `
		SELECT name, locked_until, locked_at, locked_by FROM scheduler_locks WHERE name=$1`, name).
		Scan(&le.Name, &le.LockedUntil, &le.LockedAt, &le.LockedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, err
	}
	return le, true, nil
}
