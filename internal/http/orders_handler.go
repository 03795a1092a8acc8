package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/posify/internal/checkout"
	"github.com/fjod/posify/internal/domain"
)

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (*checkout.PlaceOrderResult, error)
	Quote(req checkout.PlaceOrderRequest) (domain.MoneyBreakdown, error)
	Settings() domain.Settings
	UpdateSettings(s domain.Settings) error
}

type OrdersHandler struct {
	orders  OrderPlacer
	timeout time.Duration
}

func NewOrdersHandler(orders OrderPlacer, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

// POST /api/v1/orders
//
// 201 when the order service accepted the order, 202 when it was queued.
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req checkout.PlaceOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		handleError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Outcome == checkout.OutcomeQueued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}

// POST /api/v1/orders/quote
func (h *OrdersHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req checkout.PlaceOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.orders.Quote(req)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// GET /api/v1/settings
func (h *OrdersHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s := h.orders.Settings()
	if !s.Loaded() {
		handleError(w, domain.ErrSettingsNotLoaded)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// PUT /api/v1/settings
func (h *OrdersHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s domain.Settings
	if !decodeJSON(w, r, &s) {
		return
	}
	if err := h.orders.UpdateSettings(s); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.orders.Settings())
}
