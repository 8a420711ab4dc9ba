package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/notify"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/stock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// fakeDB behaves like a read-committed database: reads see committed rows,
// a conditioned write locks its row until the transaction ends, and
// nothing a transaction writes is visible before it commits.
type fakeDB struct {
	mu       sync.Mutex
	users    map[int64]orders.User
	foods    map[int64]stock.Item
	orders   map[int64]orders.Order
	rowLocks map[int64]*sync.Mutex
	nextID   int64
	commits  int

	// forcedConflicts makes the next n conditioned writes miss.
	forcedConflicts int
	// casErrs are returned, in order, by the next conditioned writes.
	casErrs   []error
	insertErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:    map[int64]orders.User{1: {ID: 1, Username: "alice"}},
		foods:    map[int64]stock.Item{},
		orders:   map[int64]orders.Order{},
		rowLocks: map[int64]*sync.Mutex{},
	}
}

func (db *fakeDB) addFood(it stock.Item) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if it.Status == "" {
		it.Status = stock.StatusActive
	}
	db.foods[it.ID] = it
	db.rowLocks[it.ID] = &sync.Mutex{}
}

func (db *fakeDB) food(id int64) stock.Item {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.foods[id]
}

func (db *fakeDB) order(id int64) orders.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.orders[id]
}

func (db *fakeDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func (db *fakeDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx := &fakeTx{db: db, foods: map[int64]stock.Item{}, updates: map[int64]orders.Order{}, held: map[int64]*sync.Mutex{}}
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	db.mu.Lock()
	for id, it := range tx.foods {
		db.foods[id] = it
	}
	for _, o := range tx.inserted {
		db.orders[o.ID] = o
	}
	for id, o := range tx.updates {
		db.orders[id] = o
	}
	db.commits++
	db.mu.Unlock()

	tx.releaseLocks()
	for _, h := range tx.hooks {
		h()
	}
	return nil
}

type fakeTx struct {
	db       *fakeDB
	foods    map[int64]stock.Item
	inserted []orders.Order
	updates  map[int64]orders.Order
	held     map[int64]*sync.Mutex
	hooks    []func()
}

func (t *fakeTx) releaseLocks() {
	for id, m := range t.held {
		m.Unlock()
		delete(t.held, id)
	}
}

func (t *fakeTx) Stock() stock.Store { return t }

func (t *fakeTx) AfterCommit(fn func()) { t.hooks = append(t.hooks, fn) }

func (t *fakeTx) FindUser(ctx context.Context, id int64) (orders.User, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	u, ok := t.db.users[id]
	if !ok {
		return orders.User{}, orders.ErrUserNotFound
	}
	return u, nil
}

func (t *fakeTx) Load(ctx context.Context, id int64) (stock.Item, error) {
	if it, ok := t.foods[id]; ok {
		return it, nil
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	it, ok := t.db.foods[id]
	if !ok {
		return stock.Item{}, stock.ErrNotFound
	}
	return it, nil
}

func (t *fakeTx) CompareAndSwap(ctx context.Context, id int64, qty int, expected int64) (bool, error) {
	t.db.mu.Lock()
	if t.db.forcedConflicts > 0 {
		t.db.forcedConflicts--
		t.db.mu.Unlock()
		return false, nil
	}
	if len(t.db.casErrs) > 0 {
		err := t.db.casErrs[0]
		t.db.casErrs = t.db.casErrs[1:]
		t.db.mu.Unlock()
		return false, err
	}
	lock, ok := t.db.rowLocks[id]
	t.db.mu.Unlock()
	if !ok {
		return false, nil
	}
	if _, mine := t.held[id]; !mine {
		lock.Lock()
		t.held[id] = lock
	}

	cur, ok := t.foods[id]
	if !ok {
		t.db.mu.Lock()
		cur = t.db.foods[id]
		t.db.mu.Unlock()
	}
	if cur.Version != expected {
		return false, nil
	}
	cur.Quantity = qty
	cur.Version++
	t.foods[id] = cur
	return true, nil
}

func (t *fakeTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	if t.db.insertErr != nil {
		return t.db.insertErr
	}
	t.db.mu.Lock()
	t.db.nextID++
	o.ID = t.db.nextID
	t.db.mu.Unlock()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.inserted = append(t.inserted, *o)
	return nil
}

func (t *fakeTx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	if o, ok := t.updates[id]; ok {
		return o, nil
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	o, ok := t.db.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (t *fakeTx) UpdateOrderState(ctx context.Context, id int64, st orders.Status, ps orders.PaymentStatus) error {
	o, err := t.LockOrder(ctx, id)
	if err != nil {
		return err
	}
	o.Status, o.PaymentStatus = st, ps
	t.updates[id] = o
	return nil
}

type fakeOracle struct {
	mu        sync.Mutex
	confirmed map[string]bool
	err       error
	calls     int
	cancelled []string
}

func (o *fakeOracle) Confirm(ctx context.Context, ref string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return false, o.err
	}
	return o.confirmed[ref], nil
}

func (o *fakeOracle) Cancel(ctx context.Context, ref string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled = append(o.cancelled, ref)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []notify.OrderCommitted
}

func (e *fakeEvents) Publish(ev notify.OrderCommitted) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return true
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type harness struct {
	db     *fakeDB
	oracle *fakeOracle
	events *fakeEvents
	svc    *Service

	mu    sync.Mutex
	slept []time.Duration
}

func newHarness() *harness {
	h := &harness{
		db:     newFakeDB(),
		oracle: &fakeOracle{confirmed: map[string]bool{}},
		events: &fakeEvents{},
	}
	h.svc = NewService(h.db, h.oracle, h.events, DefaultRetryConfig(), zap.NewNop(), metrics.NewNop())
	h.svc.newTimer = func() backoff.Timer { return &instantTimer{h: h} }
	return h
}

// instantTimer records each requested wait and fires at once.
type instantTimer struct {
	h *harness
	c chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.h.mu.Lock()
	t.h.slept = append(t.h.slept, d)
	t.h.mu.Unlock()
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

var errBoom = errors.New("boom")
