package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/stock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxAttempts    int // total attempts, first one included
	InitialBackoff time.Duration
	Multiplier     float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: 100 * time.Millisecond, Multiplier: 2}
}

// policy waits InitialBackoff*Multiplier^n between attempts, without jitter,
// and stops after MaxAttempts or when ctx is done.
func (c RetryConfig) policy(ctx context.Context) backoff.BackOff {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// withRetry re-runs fn while it fails with an optimistic conflict. Any other
// error ends the loop at once.
func (s *Service) withRetry(ctx context.Context, log *zap.Logger, fn func(ctx context.Context) error) (int, error) {
	attempt := 0
	op := func() error {
		attempt++
		s.Metrics.CheckoutAttempts.Inc()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, stock.ErrOptimisticConflict) {
			return backoff.Permanent(err)
		}
		s.Metrics.CheckoutConflict.Inc()
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("inventory conflict detected during checkout, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
	}

	var timer backoff.Timer
	if s.newTimer != nil {
		timer = s.newTimer()
	}
	err := backoff.RetryNotifyWithTimer(op, s.Retry.policy(ctx), notify, timer)
	if err != nil && errors.Is(err, stock.ErrOptimisticConflict) {
		return attempt, fmt.Errorf("%w: %w", ErrHighDemand, err)
	}
	return attempt, err
}
