package analytics

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"go.uber.org/zap"
)

type memCounters struct {
	mu      sync.Mutex
	vals    map[string]int64
	scanErr error
}

func newMemCounters() *memCounters { return &memCounters{vals: map[string]int64{}} }

func (m *memCounters) IncrBy(ctx context.Context, key string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] += delta
	return nil
}

func (m *memCounters) GetDel(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	delete(m.vals, key)
	return v, ok, nil
}

func (m *memCounters) Scan(ctx context.Context, pattern string, fn func(string) error) error {
	m.mu.Lock()
	var keys []string
	for k := range m.vals {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	scanErr := m.scanErr
	m.mu.Unlock()
	sort.Strings(keys)

	for i, k := range keys {
		// fail after the first key so a partial drain is observable
		if scanErr != nil && i == 1 {
			return scanErr
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

type fakeLocker struct {
	held     bool
	acquired int
	released int
	atLeast  time.Duration
	atMost   time.Duration
}

func (l *fakeLocker) TryAcquire(ctx context.Context, name string, atMost time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired++
	l.atMost = atMost
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, name string, atLeast time.Duration) error {
	l.released++
	l.atLeast = atLeast
	return nil
}

type fakeSink struct {
	batches [][]Delta
	totals  map[int64]Delta
	err     error
}

func (s *fakeSink) ApplyDeltas(ctx context.Context, deltas []Delta) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.totals == nil {
		s.totals = map[int64]Delta{}
	}
	s.batches = append(s.batches, deltas)
	for _, d := range deltas {
		t := s.totals[d.FoodID]
		t.FoodID = d.FoodID
		t.Views += d.Views
		t.Orders += d.Orders
		s.totals[d.FoodID] = t
	}
	return int64(len(deltas)), nil
}

func newReconciler(store CounterStore, sink Sink, lock Locker) *Reconciler {
	return &Reconciler{
		Store:  store,
		Sink:   sink,
		Locker: lock,
		Cfg: ReconcilerConfig{
			Interval: time.Minute,
			LockName: "syncFoodAnalytics",
			AtLeast:  5 * time.Minute,
			AtMost:   30 * time.Minute,
		},
		Log:     zap.NewNop(),
		Metrics: metrics.NewNop(),
	}
}

func TestOrderIncrementsReconcileToSum(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	agg := &Aggregator{Store: store, Log: zap.NewNop()}
	sink := &fakeSink{}
	lock := &fakeLocker{}

	if err := agg.IncrementOrder(ctx, 7, 3); err != nil {
		t.Fatal(err)
	}
	if err := agg.IncrementOrder(ctx, 7, 2); err != nil {
		t.Fatal(err)
	}
	if len(sink.batches) != 0 {
		t.Fatal("aggregator must not touch the durable store")
	}

	res, err := newReconciler(store, sink, lock).Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !res.Acquired || res.OrderKeys != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := sink.totals[7].Orders; got != 5 {
		t.Fatalf("order count delta = %d, want 5", got)
	}
	if lock.acquired != 1 || lock.released != 1 {
		t.Fatalf("lock acquired=%d released=%d", lock.acquired, lock.released)
	}
	if lock.atMost != 30*time.Minute || lock.atLeast != 5*time.Minute {
		t.Fatalf("lock bounds atMost=%v atLeast=%v", lock.atMost, lock.atLeast)
	}
	if len(store.vals) != 0 {
		t.Fatalf("drained keys left behind: %v", store.vals)
	}
}

func TestSecondDrainAppliesNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	agg := &Aggregator{Store: store, Log: zap.NewNop()}
	sink := &fakeSink{}
	r := newReconciler(store, sink, &fakeLocker{})

	_ = agg.IncrementView(ctx, 1)
	_ = agg.IncrementView(ctx, 1)
	_ = agg.IncrementOrder(ctx, 2, 4)

	if _, err := r.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := r.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.ViewKeys != 0 || res.OrderKeys != 0 || res.RowsApplied != 0 {
		t.Fatalf("second tick drained something: %+v", res)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sink.batches))
	}
	if sink.totals[1].Views != 2 || sink.totals[2].Orders != 4 {
		t.Fatalf("double counted: %+v", sink.totals)
	}
}

func TestViewsAndOrdersGroupedPerFood(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	agg := &Aggregator{Store: store, Log: zap.NewNop()}
	sink := &fakeSink{}

	_ = agg.IncrementView(ctx, 3)
	_ = agg.IncrementOrder(ctx, 3, 1)
	_ = agg.IncrementView(ctx, 1)

	if _, err := newReconciler(store, sink, &fakeLocker{}).Tick(ctx); err != nil {
		t.Fatal(err)
	}
	want := []Delta{{FoodID: 1, Views: 1}, {FoodID: 3, Views: 1, Orders: 1}}
	got := sink.batches[0]
	if len(got) != len(want) {
		t.Fatalf("batch = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTickSkippedWhileLockHeld(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	_ = store.IncrBy(ctx, "order:7", 3)
	sink := &fakeSink{}
	lock := &fakeLocker{held: true}

	res, err := newReconciler(store, sink, lock).Tick(ctx)
	if err != nil {
		t.Fatalf("held lock must not be an error: %v", err)
	}
	if res.Acquired || len(sink.batches) != 0 || lock.released != 0 {
		t.Fatalf("tick ran without the lock: %+v", res)
	}
	if store.vals["order:7"] != 3 {
		t.Fatal("counters drained without the lock")
	}
}

func TestScanFailureAbortsTick(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	_ = store.IncrBy(ctx, "view:1", 1)
	_ = store.IncrBy(ctx, "view:2", 1)
	store.scanErr = errors.New("connection reset")
	sink := &fakeSink{}
	lock := &fakeLocker{}

	_, err := newReconciler(store, sink, lock).Tick(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(sink.batches) != 0 {
		t.Fatal("partial drain must not be applied")
	}
	if lock.released != 1 {
		t.Fatal("lock not released after failure")
	}
	// view:1 was drained before the failure and is lost for this tick only
	if _, ok := store.vals["view:2"]; !ok {
		t.Fatal("undrained key must survive")
	}
}

func TestApplyFailureReported(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	_ = store.IncrBy(ctx, "order:9", 1)
	sink := &fakeSink{err: errors.New("db down")}

	if _, err := newReconciler(store, sink, &fakeLocker{}).Tick(ctx); err == nil {
		t.Fatal("expected apply error")
	}
}

func TestMalformedKeysLeftAlone(t *testing.T) {
	ctx := context.Background()
	store := newMemCounters()
	_ = store.IncrBy(ctx, "view:abc", 4)
	_ = store.IncrBy(ctx, "view:5", 1)
	sink := &fakeSink{}

	res, err := newReconciler(store, sink, &fakeLocker{}).Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.ViewKeys != 1 || sink.totals[5].Views != 1 {
		t.Fatalf("unexpected result %+v totals %+v", res, sink.totals)
	}
	if store.vals["view:abc"] != 4 {
		t.Fatal("malformed key must not be deleted")
	}
}

func TestIncrementOrderIgnoresNonPositive(t *testing.T) {
	store := newMemCounters()
	agg := &Aggregator{Store: store, Log: zap.NewNop()}
	if err := agg.IncrementOrder(context.Background(), 1, 0); err != nil {
		t.Fatal(err)
	}
	if len(store.vals) != 0 {
		t.Fatalf("unexpected keys: %v", store.vals)
	}
}
