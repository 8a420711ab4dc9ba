package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/checkout"
	"github.com/ariefcatur/go-food-orders/internal/logging"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Checkout is satisfied by *checkout.Service.
type Checkout interface {
	CreateOrderWithPayment(ctx context.Context, req checkout.Request) (*orders.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*orders.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, to orders.Status) (*orders.Order, error)
}

// OrderReader is satisfied by *orders.Repo.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID int64) (orders.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]orders.Order, error)
	ListOrders(ctx context.Context, status orders.Status) ([]orders.Order, error)
}

type OrdersHandler struct {
	Checkout Checkout
	Orders   OrderReader
	Validate *validatorv10.Validate
	Log      *zap.Logger
}

type CheckoutReq struct {
	UserID          int64              `json:"user_id" validate:"required,gt=0"`
	Items           []orders.ItemInput `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string             `json:"payment_method" validate:"required,oneof=cash card"`
	PaymentIntentID string             `json:"payment_intent_id"`
}

type UpdateStatusReq struct {
	Status string `json:"status" validate:"required,oneof=PENDING PROCESSING DELIVERED CANCELLED"`
}

type LineResp struct {
	FoodID     int64 `json:"food_id"`
	Quantity   int   `json:"quantity"`
	PriceCents int64 `json:"price_cents"`
}

type OrderResp struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Items           []LineResp `json:"items"`
	TotalCents      int64      `json:"total_cents"`
	Status          string     `json:"status"`
	PaymentMethod   string     `json:"payment_method"`
	PaymentIntentID string     `json:"payment_intent_id,omitempty"`
	PaymentStatus   string     `json:"payment_status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toOrderResp(o orders.Order) OrderResp {
	items := make([]LineResp, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, LineResp{FoodID: l.FoodID, Quantity: l.Quantity, PriceCents: l.PriceCents})
	}
	return OrderResp{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		TotalCents:      o.TotalCents,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentIntentID: o.PaymentIntentRef,
		PaymentStatus:   string(o.PaymentStatus),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderList(list []orders.Order) []OrderResp {
	out := make([]OrderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	return out
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/users/{id}/orders", h.listUserOrders)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.Log)
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}

	// payment oracle plus retries
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Checkout.CreateOrderWithPayment(ctx, checkout.Request{
		UserID:           req.UserID,
		Items:            req.Items,
		PaymentMethod:    orders.PaymentMethod(req.PaymentMethod),
		PaymentIntentRef: req.PaymentIntentID,
	})
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResp(*o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, id)
	if err != nil {
		writeError(w, logging.FromContext(r.Context(), h.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, status)
	if err != nil {
		writeError(w, logging.FromContext(r.Context(), h.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListUserOrders(ctx, id)
	if err != nil {
		writeError(w, logging.FromContext(r.Context(), h.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Checkout.CancelOrder(ctx, id)
	if err != nil {
		writeError(w, logging.FromContext(r.Context(), h.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(*o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Checkout.UpdateStatus(ctx, id, orders.Status(req.Status))
	if err != nil {
		writeError(w, logging.FromContext(r.Context(), h.Log), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(*o))
}
