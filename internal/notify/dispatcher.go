package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"go.uber.org/zap"
)

// Sink consumes committed orders. Sinks run sequentially on the dispatcher
// goroutine; a failing sink does not stop the others.
type Sink interface {
	Name() string
	HandleOrderCommitted(ctx context.Context, ev OrderCommitted) error
}

// Dispatcher decouples commit hooks from sink latency with a bounded queue.
type Dispatcher struct {
	sinks       []Sink
	events      chan OrderCommitted
	log         *zap.Logger
	metrics     *metrics.Metrics
	sinkTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(buf int, log *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if buf <= 0 {
		buf = 1
	}
	return &Dispatcher{
		sinks:       sinks,
		events:      make(chan OrderCommitted, buf),
		log:         log,
		metrics:     m,
		sinkTimeout: 5 * time.Second,
	}
}

// Publish never blocks. It reports false when the event was dropped
// because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Publish(ev OrderCommitted) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped(ev, "closed")
		return false
	}
	select {
	case d.events <- ev:
		return true
	default:
		d.dropped(ev, "queue_full")
		return false
	}
}

func (d *Dispatcher) dropped(ev OrderCommitted, reason string) {
	d.metrics.NotifyEvents.WithLabelValues("dispatcher", "dropped").Inc()
	d.log.Warn("post-commit event dropped", zap.Int64("order_id", ev.OrderID), zap.String("reason", reason))
}

// Run delivers events until Close is called or ctx is done; events already
// queued at that point are still delivered. Callers whose publishers outlive
// ctx run it on a context that is never cancelled and call Close instead.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				return nil
			}
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.Close()
			for ev := range d.events {
				d.deliver(context.WithoutCancel(ctx), ev)
			}
			return nil
		}
	}
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev OrderCommitted) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := s.HandleOrderCommitted(sctx, ev)
		cancel()
		if err != nil {
			d.metrics.NotifyEvents.WithLabelValues(s.Name(), "error").Inc()
			d.log.Error("post-commit sink failed",
				zap.String("sink", s.Name()), zap.Int64("order_id", ev.OrderID), zap.Error(err))
			continue
		}
		d.metrics.NotifyEvents.WithLabelValues(s.Name(), "ok").Inc()
	}
}
