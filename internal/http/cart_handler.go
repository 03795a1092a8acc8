package http

import (
	"errors"
	"net/http"

	"github.com/fjod/posify/internal/cart"
	"github.com/fjod/posify/internal/checkout"
	"github.com/fjod/posify/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Quoter interface {
	Quote(req checkout.PlaceOrderRequest) (domain.MoneyBreakdown, error)
}

type CartHandler struct {
	cart   *cart.Cart
	quoter Quoter
}

func NewCartHandler(c *cart.Cart, quoter Quoter) *CartHandler {
	return &CartHandler{cart: c, quoter: quoter}
}

type AddItemRequestDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PrepTimeMinutes int             `json:"prep_time_minutes"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type DiscountRequestDTO struct {
	Percent decimal.Decimal `json:"percent"`
}

type CartResponseDTO struct {
	Items           []domain.CartItem      `json:"items"`
	DiscountPercent decimal.Decimal        `json:"discount_percent"`
	Totals          *domain.MoneyBreakdown `json:"totals,omitempty"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, http.StatusOK)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	err := h.cart.AddItem(domain.CartItem{
		ID:              req.ID,
		Name:            req.Name,
		UnitPrice:       req.UnitPrice,
		Quantity:        req.Quantity,
		DiscountPercent: req.DiscountPercent,
		PrepTimeMinutes: req.PrepTimeMinutes,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusCreated)
}

// PUT /api/v1/cart/items/{item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cart.UpdateQuantity(chi.URLParam(r, "item_id"), req.Quantity); err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

// DELETE /api/v1/cart/items/{item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.RemoveItem(chi.URLParam(r, "item_id")); err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

// PUT /api/v1/cart/items/{item_id}/discount
func (h *CartHandler) SetItemDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cart.SetItemDiscount(chi.URLParam(r, "item_id"), req.Percent); err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

// PUT /api/v1/cart/discount
func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cart.ApplyDiscount(req.Percent); err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

// DELETE /api/v1/cart/discount
func (h *CartHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.RemoveDiscount(); err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(); err != nil {
		handleError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

// respondCart includes totals once settings are loaded; a cart can be built
// before that.
func (h *CartHandler) respondCart(w http.ResponseWriter, status int) {
	state := h.cart.Snapshot()
	resp := CartResponseDTO{
		Items:           state.Items,
		DiscountPercent: state.DiscountPercent,
	}
	if resp.Items == nil {
		resp.Items = make([]domain.CartItem, 0)
	}

	totals, err := h.quoter.Quote(checkout.PlaceOrderRequest{OrderType: domain.OrderTypeDineIn})
	switch {
	case err == nil:
		resp.Totals = &totals
	case errors.Is(err, domain.ErrSettingsNotLoaded):
	default:
		handleError(w, err)
		return
	}
	respondJSON(w, status, resp)
}
