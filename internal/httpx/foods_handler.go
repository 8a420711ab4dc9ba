package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/analytics"
	"github.com/ariefcatur/go-food-orders/internal/logging"
	"github.com/ariefcatur/go-food-orders/internal/stock"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type FoodReader interface {
	Load(ctx context.Context, foodID int64) (stock.Item, error)
}

// ViewRecorder is satisfied by *analytics.Aggregator.
type ViewRecorder interface {
	IncrementView(ctx context.Context, foodID int64) error
}

// AnalyticsLister is satisfied by analytics.PGSink.
type AnalyticsLister interface {
	ListFoodAnalytics(ctx context.Context) ([]analytics.FoodAnalytics, error)
}

type FoodsHandler struct {
	Foods     FoodReader
	Views     ViewRecorder
	Analytics AnalyticsLister
	Log       *zap.Logger
}

type FoodResp struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
	Status     string `json:"status"`
}

func (h *FoodsHandler) Register(r chi.Router) {
	r.Get("/foods/{id}", h.getFood)
	r.Get("/admin/analytics", h.listAnalytics)
}

func (h *FoodsHandler) getFood(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.Log)
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Foods.Load(ctx, id)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if err := h.Views.IncrementView(ctx, id); err != nil {
		log.Warn("failed to record food view", zap.Int64("food_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, FoodResp{
		ID:         it.ID,
		Name:       it.Name,
		Category:   it.Category,
		PriceCents: it.PriceCents,
		Quantity:   it.Quantity,
		Status:     string(it.Status),
	})
}

func (h *FoodsHandler) listAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Analytics.ListFoodAnalytics(ctx)
	if err != nil {
		writeError(w, logging.FromContext(r.Context(), h.Log), err)
		return
	}
	if list == nil {
		list = []analytics.FoodAnalytics{}
	}
	writeJSON(w, http.StatusOK, list)
}
