package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Locker is a cluster-wide lease keyed by name.
type Locker interface {
	// TryAcquire takes the lease for at most atMost. It returns false,
	// without error, when another holder's lease has not expired.
	TryAcquire(ctx context.Context, name string, atMost time.Duration) (bool, error)
	// Release ends the lease, but never earlier than atLeast after acquisition.
	Release(ctx context.Context, name string, atLeast time.Duration) error
}

// Sink merges drained deltas into the durable store in one batch.
type Sink interface {
	ApplyDeltas(ctx context.Context, deltas []Delta) (int64, error)
}

type ReconcilerConfig struct {
	Interval time.Duration
	LockName string
	AtLeast  time.Duration
	AtMost   time.Duration
}

type Reconciler struct {
	Store   CounterStore
	Sink    Sink
	Locker  Locker
	Cfg     ReconcilerConfig
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// TickResult describes one reconciliation pass.
type TickResult struct {
	Acquired    bool
	ViewKeys    int
	OrderKeys   int
	RowsApplied int64
}

var tracer = otel.Tracer("github.com/ariefcatur/go-food-orders/internal/analytics")

// Run ticks every Cfg.Interval until ctx is done. Tick failures are logged
// and counted, never returned.
func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.Cfg.Interval)
	defer t.Stop()
	r.Log.Info("reconciler started", zap.Duration("interval", r.Cfg.Interval), zap.String("lock", r.Cfg.LockName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil {
				r.Log.Error("analytics reconciliation failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) Tick(ctx context.Context) (res TickResult, err error) {
	ctx, span := tracer.Start(ctx, "analytics.reconcile")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.Metrics.ReconcileTicks.WithLabelValues("error").Inc()
		}
		span.End()
	}()

	ok, err := r.Locker.TryAcquire(ctx, r.Cfg.LockName, r.Cfg.AtMost)
	if err != nil {
		return res, fmt.Errorf("acquire %s: %w", r.Cfg.LockName, err)
	}
	if !ok {
		r.Log.Debug("reconciliation lock held elsewhere, skipping tick", zap.String("lock", r.Cfg.LockName))
		r.Metrics.ReconcileTicks.WithLabelValues("skipped").Inc()
		return res, nil
	}
	res.Acquired = true
	defer func() {
		// the tick's ctx may already be cancelled on shutdown
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := r.Locker.Release(rctx, r.Cfg.LockName, r.Cfg.AtLeast); rerr != nil {
			r.Log.Warn("release reconciliation lock", zap.String("lock", r.Cfg.LockName), zap.Error(rerr))
		}
	}()

	set := deltaSet{}
	if res.ViewKeys, err = r.drain(ctx, MetricView, set); err != nil {
		return res, err
	}
	if res.OrderKeys, err = r.drain(ctx, MetricOrder, set); err != nil {
		return res, err
	}

	deltas := set.sorted()
	if len(deltas) == 0 {
		r.Log.Info("no analytics data to sync")
		r.Metrics.ReconcileTicks.WithLabelValues("empty").Inc()
		return res, nil
	}

	res.RowsApplied, err = r.Sink.ApplyDeltas(ctx, deltas)
	if err != nil {
		// drained values of this tick are gone; the next tick starts from zero
		return res, fmt.Errorf("apply %d analytics deltas: %w", len(deltas), err)
	}
	span.SetAttributes(
		attribute.Int("analytics.view_keys", res.ViewKeys),
		attribute.Int("analytics.order_keys", res.OrderKeys),
		attribute.Int64("analytics.rows", res.RowsApplied),
	)
	r.Metrics.ReconcileRows.Add(float64(res.RowsApplied))
	r.Metrics.ReconcileTicks.WithLabelValues("applied").Inc()
	r.Log.Info("synced analytics data",
		zap.Int("view_keys", res.ViewKeys),
		zap.Int("order_keys", res.OrderKeys),
		zap.Int("deltas", len(deltas)),
		zap.Int64("rows", res.RowsApplied),
	)
	return res, nil
}

func (r *Reconciler) drain(ctx context.Context, m Metric, set deltaSet) (int, error) {
	n := 0
	err := r.Store.Scan(ctx, keyPattern(m), func(key string) error {
		foodID, ok := parseKey(m, key)
		if !ok {
			r.Log.Warn("skipping malformed counter key", zap.String("key", key))
			return nil
		}
		v, found, err := r.Store.GetDel(ctx, key)
		if err != nil {
			return fmt.Errorf("getdel %s: %w", key, err)
		}
		if !found {
			return nil
		}
		set.add(m, foodID, v)
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("drain %s counters: %w", m, err)
	}
	r.Metrics.ReconcileDrained.WithLabelValues(string(m)).Add(float64(n))
	return n, nil
}
