// Package http serves the order API: idempotent order creation and lookup
// by idempotency key.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/posify/internal/contract"
	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/orderapi/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBodySize = 1 << 20 // 1MB

type OrderService interface {
	CreateOrder(ctx context.Context, req contract.CreateOrderRequest) (*contract.CreateOrderResponse, error)
	GetOrder(ctx context.Context, organizationID, key string) (*contract.CreateOrderResponse, error)
}

type OrdersHandler struct {
	svc     OrderService
	timeout time.Duration
}

func NewOrdersHandler(svc OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{svc: svc, timeout: timeout}
}

func NewRouter(h *OrdersHandler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{idempotency_key}", h.GetOrder)
	return r
}

// POST /orders
//
// 201 for a new order, 200 when the key was seen before.
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req contract.CreateOrderRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	headerKey := r.Header.Get(contract.IdempotencyKeyHeader)
	switch {
	case req.IdempotencyKey == "":
		req.IdempotencyKey = headerKey
	case headerKey != "" && headerKey != req.IdempotencyKey:
		respondError(w, http.StatusBadRequest, "idempotency_key_mismatch",
			"Idempotency-Key header does not match idempotencyKey")
		return
	}

	resp, err := h.svc.CreateOrder(ctx, req)
	if err != nil {
		handleError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, resp)
}

// GET /orders/{idempotency_key}?organizationId=...
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key := chi.URLParam(r, "idempotency_key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key", "idempotency_key is required")
		return
	}

	resp, err := h.svc.GetOrder(ctx, r.URL.Query().Get("organizationId"), key)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, contract.ErrorResponse{Error: message, Code: code})
}

func handleError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		be *domain.BusinessError
	)
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, contract.ErrorResponse{
			Error:   err.Error(),
			Code:    "validation_error",
			Details: ve.Field,
		})
	case errors.As(err, &be):
		status := be.StatusCode
		if status < 400 || status >= 500 {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, be.Code, be.Message)
	case errors.Is(err, service.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, service.ErrOrderIDConflict):
		respondError(w, http.StatusServiceUnavailable, "retry", "order could not be stored, retry with the same idempotency key")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		slog.Error("order request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
