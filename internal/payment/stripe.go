package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// cancellable mirrors the intent states Stripe accepts a cancel for.
var cancellable = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusRequiresPaymentMethod: true,
	stripe.PaymentIntentStatusRequiresConfirmation:  true,
	stripe.PaymentIntentStatusRequiresAction:        true,
}

// StripeOracle reads and cancels Stripe payment intents.
type StripeOracle struct {
	intents *paymentintent.Client
	log     *zap.Logger
}

// NewStripeOracle talks to the API at baseURL. Requests are not retried by
// the SDK; a failed confirm fails the attempt it belongs to.
func NewStripeOracle(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *StripeOracle {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.Sugar(),
	})
	return &StripeOracle{
		intents: &paymentintent.Client{B: backend, Key: apiKey},
		log:     log,
	}
}

func (o *StripeOracle) Confirm(ctx context.Context, ref string) (bool, error) {
	pi, err := o.intents.Get(ref, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		o.log.Error("confirm payment intent", zap.String("payment_ref", ref), zap.Error(err))
		return false, err
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		o.log.Warn("payment not confirmed", zap.String("payment_ref", ref), zap.String("intent_status", string(pi.Status)))
		return false, nil
	}
	o.log.Info("payment confirmed", zap.String("payment_ref", ref))
	return true, nil
}

func (o *StripeOracle) Cancel(ctx context.Context, ref string) error {
	pi, err := o.intents.Get(ref, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return fmt.Errorf("retrieve payment intent %s: %w", ref, err)
	}
	if !cancellable[pi.Status] {
		o.log.Warn("payment intent not cancellable", zap.String("payment_ref", ref), zap.String("intent_status", string(pi.Status)))
		return nil
	}
	if _, err := o.intents.Cancel(ref, &stripe.PaymentIntentCancelParams{Params: stripe.Params{Context: ctx}}); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", ref, err)
	}
	o.log.Info("payment intent canceled", zap.String("payment_ref", ref))
	return nil
}
