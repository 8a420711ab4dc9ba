package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/checkout"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/stock"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, stock.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrEmptyOrder),
		errors.Is(err, checkout.ErrInvalidPaymentMethod),
		errors.Is(err, stock.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, stock.ErrItemUnavailable),
		errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrHighDemand):
		return http.StatusServiceUnavailable
	case errors.Is(err, checkout.ErrPaymentFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors to a status code. Internal details of 5xx
// errors stay in the log.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, checkout.ErrHighDemand):
		msg = checkout.ErrHighDemand.Error()
	case code == http.StatusInternalServerError:
		log.Error("request failed", zap.Error(err))
		msg = checkout.ErrOrderCreationFailed.Error()
		if !errors.Is(err, checkout.ErrOrderCreationFailed) {
			msg = "internal error"
		}
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeValidation(w http.ResponseWriter, err error) {
	fields := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Namespace()] = fe.Tag()
		}
	} else {
		fields["error"] = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation_failed",
		"fields": fields,
	})
}
