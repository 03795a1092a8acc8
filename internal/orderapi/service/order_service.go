// Package service creates orders exactly once per organization and
// idempotency key.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/posify/internal/contract"
	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/orderapi/cache"
	"github.com/fjod/posify/internal/orderapi/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var (
	ErrOrderNotFound   = repository.ErrOrderNotFound
	ErrOrderIDConflict = repository.ErrOrderIDConflict
)

const (
	maxCreateAttempts = 3
	createTimeout     = 10 * time.Second
)

// rounding slack allowed between client and server totals
var tolerance = decimal.New(1, -2)

type OrderService struct {
	repo  repository.RepoInterface
	cache cache.ReplayCache
	sfg   singleflight.Group
	log   *slog.Logger
}

// NewOrderService builds the service. replay may be nil.
func NewOrderService(repo repository.RepoInterface, replay cache.ReplayCache, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{repo: repo, cache: replay, log: log}
}

// CreateOrder stores req once. Any later call with the same organization
// and key returns the first result with Duplicate set.
func (s *OrderService) CreateOrder(ctx context.Context, req contract.CreateOrderRequest) (*contract.CreateOrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := checkTotals(req); err != nil {
		return nil, err
	}

	// Concurrent replays of one key share a single database round trip. The
	// shared call is detached from whichever caller started it, so one
	// cancelled request does not fail the others.
	ch := s.sfg.DoChan(req.OrganizationID+"/"+req.IdempotencyKey, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return s.create(ctx, req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := *res.Val.(*contract.CreateOrderResponse)
		return &resp, nil
	}
}

func (s *OrderService) create(ctx context.Context, req contract.CreateOrderRequest) (*contract.CreateOrderResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, req.OrganizationID, req.IdempotencyKey)
		if err == nil {
			cached.Duplicate = true
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("replay cache get failed", "error", err)
		}
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}
	status := req.Status
	if status == "" {
		status = "pending"
	}

	var (
		stored  *repository.Order
		created bool
	)
	for attempt := 1; ; attempt++ {
		stored, created, err = s.repo.CreateOrder(ctx, &repository.Order{
			ID:             uuid.New(),
			OrganizationID: req.OrganizationID,
			IdempotencyKey: req.IdempotencyKey,
			Status:         status,
			Total:          req.Total,
			Currency:       req.Currency,
			Request:        raw,
		})
		if !errors.Is(err, ErrOrderIDConflict) || attempt == maxCreateAttempts {
			break
		}
		s.log.Warn("order id collision, retrying with a new id",
			"idempotency_key", req.IdempotencyKey, "attempt", attempt)
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	resp := toResponse(stored)
	resp.Duplicate = !created
	if created {
		s.log.Info("order created",
			"order_id", resp.OrderID, "order_number", resp.OrderNumber, "idempotency_key", req.IdempotencyKey)
	} else {
		s.log.Info("duplicate order submission", "order_id", resp.OrderID, "idempotency_key", req.IdempotencyKey)
	}

	if s.cache != nil {
		cached := *resp
		cached.Duplicate = false
		if err := s.cache.Set(ctx, req.OrganizationID, req.IdempotencyKey, &cached); err != nil {
			s.log.Warn("replay cache set failed", "error", err)
		}
	}
	return resp, nil
}

func (s *OrderService) GetOrder(ctx context.Context, organizationID, key string) (*contract.CreateOrderResponse, error) {
	if organizationID == "" {
		return nil, domain.NewValidationError("organizationId", "is required")
	}
	stored, err := s.repo.GetByIdempotencyKey(ctx, organizationID, key)
	if err != nil {
		return nil, err
	}
	return toResponse(stored), nil
}

func toResponse(o *repository.Order) *contract.CreateOrderResponse {
	return &contract.CreateOrderResponse{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
	}
}

// checkTotals recomputes the item subtotal and the grand total from the
// submitted parts. A mismatch is a business rejection.
func checkTotals(req contract.CreateOrderRequest) error {
	subtotal := decimal.Zero
	for _, it := range req.Items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if subtotal.Sub(req.Subtotal).Abs().GreaterThan(tolerance) {
		return &domain.BusinessError{
			StatusCode: 422,
			Code:       "subtotal_mismatch",
			Message:    fmt.Sprintf("subtotal %s does not match items (%s)", req.Subtotal, subtotal),
		}
	}

	tax := decimal.Zero
	for _, t := range req.Tax {
		tax = tax.Add(t.Amount)
	}
	total := req.Subtotal.
		Sub(req.ItemDiscountTotal).
		Sub(req.CartDiscount).
		Add(tax).
		Add(req.ServiceCharge).
		Add(req.Tip).
		Add(req.DeliveryCharge)
	// every part was rounded on its own, allow one cent per part
	slack := tolerance.Mul(decimal.NewFromInt(int64(len(req.Tax) + 6)))
	if total.Sub(req.Total).Abs().GreaterThan(slack) {
		return &domain.BusinessError{
			StatusCode: 422,
			Code:       "total_mismatch",
			Message:    fmt.Sprintf("total %s does not match its parts (%s)", req.Total, total),
		}
	}
	return nil
}
