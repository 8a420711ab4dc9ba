package payment

import "context"

// Oracle answers whether a payment reference has been paid. Settlement is the
// provider's business; callers only consume the boolean.
type Oracle interface {
	// Confirm reports whether ref is paid. Callers treat an error as not paid.
	Confirm(ctx context.Context, ref string) (bool, error)
	Cancel(ctx context.Context, ref string) error
}
