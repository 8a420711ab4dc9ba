package orders

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/ariefcatur/go-food-orders/internal/stock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the unit of work of one checkout attempt or status change.
// Nothing written through it is visible to others until the enclosing
// WithinTx returns nil.
type Tx interface {
	Stock() stock.Store
	FindUser(ctx context.Context, userID int64) (User, error)
	InsertOrder(ctx context.Context, o *Order) error
	// LockOrder loads the order and holds its row until the tx ends.
	LockOrder(ctx context.Context, orderID int64) (Order, error)
	UpdateOrderState(ctx context.Context, orderID int64, status Status, payment PaymentStatus) error
	// AfterCommit queues fn to run once the tx has committed.
	AfterCommit(fn func())
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.WithTx(ctx, r.DB, func(ctx context.Context, s *postgres.Scope) error {
		return fn(ctx, &pgTx{s: s})
	})
}

type pgTx struct{ s *postgres.Scope }

func (t *pgTx) Stock() stock.Store { return stock.PGStore{Q: t.s.Tx} }

func (t *pgTx) AfterCommit(fn func()) { t.s.AfterCommit(fn) }

func (t *pgTx) FindUser(ctx context.Context, userID int64) (User, error) {
	return findUser(ctx, t.s.Tx, userID)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	var ref *string
	if o.PaymentIntentRef != "" {
		ref = &o.PaymentIntentRef
	}
	err := t.s.Tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, total_cents, status, payment_method, payment_intent_ref, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.TotalCents, string(o.Status), string(o.PaymentMethod), ref, string(o.PaymentStatus),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	// insert items
	for _, l := range o.Lines {
		if _, err := t.s.Tx.Exec(ctx, `
			INSERT INTO order_items(order_id, food_id, quantity, price_cents)
			VALUES ($1, $2, $3, $4)`,
			o.ID, l.FoodID, l.Quantity, l.PriceCents,
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID int64) (Order, error) {
	o, err := scanOrder(t.s.Tx.QueryRow(ctx, selectOrder+` WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return Order{}, err
	}
	lines, err := loadLines(ctx, t.s.Tx, []int64{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (t *pgTx) UpdateOrderState(ctx context.Context, orderID int64, status Status, payment PaymentStatus) error {
	ct, err := t.s.Tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, updated_at=now() WHERE id=$1`,
		orderID, string(status), string(payment))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) FindUser(ctx context.Context, userID int64) (User, error) {
	return findUser(ctx, r.DB, userID)
}

func (r *Repo) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, selectOrder+` WHERE id=$1`, orderID))
	if err != nil {
		return Order{}, err
	}
	lines, err := loadLines(ctx, r.DB, []int64{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (r *Repo) ListUserOrders(ctx context.Context, userID int64) ([]Order, error) {
	return r.list(ctx, selectOrder+` WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
}

// ListOrders returns every order, newest first; an empty status means no filter.
func (r *Repo) ListOrders(ctx context.Context, status Status) ([]Order, error) {
	if status == "" {
		return r.list(ctx, selectOrder+` ORDER BY created_at DESC, id DESC`)
	}
	return r.list(ctx, selectOrder+` WHERE status=$1 ORDER BY created_at DESC, id DESC`, string(status))
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := loadLines(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

const selectOrder = `SELECT id, user_id, total_cents, status, payment_method,
       COALESCE(payment_intent_ref, ''), payment_status, created_at, updated_at
  FROM orders`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, method, payment string
	err := row.Scan(&o.ID, &o.UserID, &o.TotalCents, &status, &method,
		&o.PaymentIntentRef, &payment, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	o.PaymentStatus = PaymentStatus(payment)
	return o, nil
}

func loadLines(ctx context.Context, q postgres.Querier, orderIDs []int64) (map[int64][]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, food_id, quantity, price_cents
		  FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]Line, len(orderIDs))
	for rows.Next() {
		var orderID int64
		var l Line
		if err := rows.Scan(&orderID, &l.FoodID, &l.Quantity, &l.PriceCents); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, rows.Err()
}

func findUser(ctx context.Context, q postgres.Querier, userID int64) (User, error) {
	var u User
	err := q.QueryRow(ctx, `SELECT id, username, email FROM users WHERE id=$1`, userID).
		Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}
