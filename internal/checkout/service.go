package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/logging"
	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/notify"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/payment"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-food-orders/internal/checkout")

// Store opens one transaction per call; *orders.Repo implements it.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error
}

// Publisher receives committed orders; *notify.Dispatcher implements it.
type Publisher interface {
	Publish(ev notify.OrderCommitted) bool
}

type Request struct {
	UserID           int64
	Items            []orders.ItemInput
	PaymentMethod    orders.PaymentMethod
	PaymentIntentRef string
}

type Service struct {
	Store   Store
	Oracle  payment.Oracle
	Events  Publisher
	Retry   RetryConfig
	Log     *zap.Logger
	Metrics *metrics.Metrics

	// newTimer, when set, replaces the wall-clock timer between attempts.
	newTimer func() backoff.Timer
}

func NewService(store Store, oracle payment.Oracle, events Publisher, retry RetryConfig, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		Store:   store,
		Oracle:  oracle,
		Events:  events,
		Retry:   retry,
		Log:     log,
		Metrics: m,
	}
}

// CreateOrderWithPayment validates and reserves every line, settles card
// payments through the oracle and persists the order, all in one
// transaction per attempt. Whole attempts are retried on stock conflicts.
func (s *Service) CreateOrderWithPayment(ctx context.Context, req Request) (*orders.Order, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "checkout.create_order", trace.WithAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.String("payment.method", string(req.PaymentMethod)),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer span.End()

	log := logging.FromContext(ctx, s.Log).With(
		zap.Int64("user_id", req.UserID),
		zap.String("payment_method", string(req.PaymentMethod)),
	)
	log.Info("creating order with payment")

	var order *orders.Order
	attempts, err := s.withRetry(ctx, log, func(ctx context.Context) error {
		o, err := s.attempt(ctx, log, req)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	span.SetAttributes(attribute.Int("checkout.attempts", attempts))
	s.Metrics.CheckoutLatency.Observe(float64(time.Since(start).Milliseconds()))

	result := "created"
	switch {
	case err == nil:
		span.SetAttributes(attribute.Int64("order.id", order.ID))
		log.Info("order created", zap.Int64("order_id", order.ID), zap.Int64("total_cents", order.TotalCents),
			zap.String("status", string(order.Status)), zap.Int("attempts", attempts))
	case errors.Is(err, ErrHighDemand):
		result = "high_demand"
		log.Warn("checkout retries exhausted", zap.Int("attempts", attempts), zap.Error(err))
	case errors.Is(err, ErrPaymentFailed):
		result = "payment_failed"
		log.Warn("card payment failed for order", zap.Error(err))
	case IsClientError(err):
		result = "rejected"
		log.Info("checkout rejected", zap.Error(err))
	default:
		result = "error"
		log.Error("error creating order with payment", zap.Error(err))
		err = fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}
	s.Metrics.CheckoutResults.WithLabelValues(result).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return nil, err
	}
	return order, nil
}

func (s *Service) attempt(ctx context.Context, log *zap.Logger, req Request) (*orders.Order, error) {
	var out *orders.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.FindUser(ctx, req.UserID); err != nil {
			return err
		}
		o, err := buildOrder(ctx, tx.Stock(), req)
		if err != nil {
			return err
		}
		if err := s.settlePayment(ctx, log, o); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		ev := notify.FromOrder(o)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ev.TraceID = sc.TraceID().String()
		}
		tx.AfterCommit(func() {
			if !s.Events.Publish(ev) {
				log.Warn("order committed but post-commit event dropped", zap.Int64("order_id", ev.OrderID))
			}
		})
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settlePayment consults the oracle for card orders carrying a reference.
// A declined or unreachable payment fails the attempt so the reservations
// roll back with it.
func (s *Service) settlePayment(ctx context.Context, log *zap.Logger, o *orders.Order) error {
	switch o.PaymentMethod {
	case orders.PaymentCard:
		if o.PaymentIntentRef == "" {
			return nil
		}
		confirmed, err := s.Oracle.Confirm(ctx, o.PaymentIntentRef)
		if err != nil {
			log.Warn("payment oracle error, treating as not confirmed",
				zap.String("payment_ref", o.PaymentIntentRef), zap.Error(err))
		}
		if !confirmed {
			o.PaymentStatus = orders.PaymentFailed
			o.Status = orders.StatusCancelled
			return fmt.Errorf("%w (payment ref %s)", ErrPaymentFailed, o.PaymentIntentRef)
		}
		o.PaymentStatus = orders.PaymentCompleted
		o.Status = orders.StatusProcessing
		log.Info("card payment confirmed for order", zap.String("payment_ref", o.PaymentIntentRef))
	case orders.PaymentCash:
		o.PaymentStatus = orders.PaymentPending
		log.Info("cash on delivery order created")
	}
	return nil
}

// CancelOrder moves a non-terminal order to CANCELLED. Reserved stock is
// not returned to the ledger. An unpaid card intent is cancelled at the
// provider once the status change has committed.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*orders.Order, error) {
	log := logging.FromContext(ctx, s.Log).With(zap.Int64("order_id", orderID))
	log.Info("cancelling order")

	var out orders.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, orders.StatusCancelled) {
			return fmt.Errorf("%w: cannot cancel order with status %s", orders.ErrInvalidStateTransition, o.Status)
		}

		ps := o.PaymentStatus
		cancelRef := ""
		if o.PaymentMethod == orders.PaymentCard && o.PaymentStatus == orders.PaymentPending && o.PaymentIntentRef != "" {
			ps = orders.PaymentCanceled
			cancelRef = o.PaymentIntentRef
		}
		if err := tx.UpdateOrderState(ctx, o.ID, orders.StatusCancelled, ps); err != nil {
			return err
		}
		if cancelRef != "" {
			tx.AfterCommit(func() { s.cancelPayment(ctx, log, cancelRef) })
		}
		o.Status, o.PaymentStatus = orders.StatusCancelled, ps
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("order cancelled successfully")
	return &out, nil
}

func (s *Service) cancelPayment(ctx context.Context, log *zap.Logger, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Oracle.Cancel(ctx, ref); err != nil {
		log.Error("cancel payment intent", zap.String("payment_ref", ref), zap.Error(err))
	}
}

// UpdateStatus applies an admin status change along the order state machine.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to orders.Status) (*orders.Order, error) {
	if to == orders.StatusCancelled {
		return s.CancelOrder(ctx, orderID)
	}
	log := logging.FromContext(ctx, s.Log).With(zap.Int64("order_id", orderID))
	log.Info("updating order status", zap.String("status", string(to)))

	var out orders.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidStateTransition, o.Status, to)
		}
		if err := tx.UpdateOrderState(ctx, o.ID, to, o.PaymentStatus); err != nil {
			return err
		}
		o.Status = to
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
