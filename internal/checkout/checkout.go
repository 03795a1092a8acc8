// Package checkout turns the current cart into an order: it prices and
// freezes the payload, submits it once and falls back to the offline queue
// when the order service cannot be reached.
package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/posify/internal/cart"
	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/pricing"
	"github.com/fjod/posify/internal/settings"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Submitter interface {
	SubmitOrder(ctx context.Context, payload domain.OrderPayload) (*domain.OrderResult, error)
}

type Queue interface {
	Enqueue(ctx context.Context, entry domain.QueueEntry) (bool, error)
}

type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeQueued    Outcome = "queued"
)

type PlaceOrderRequest struct {
	Customer      domain.Customer      `json:"customer"`
	PaymentMethod string               `json:"payment_method"`
	OrderType     domain.OrderType     `json:"order_type"`
	Delivery      *domain.DeliveryMeta `json:"delivery,omitempty"`
	// Tip is a custom amount. TipPercent picks one of the configured
	// percentages and is applied to the discounted subtotal.
	Tip        decimal.Decimal  `json:"tip"`
	TipPercent *decimal.Decimal `json:"tip_percent,omitempty"`
}

type PlaceOrderResult struct {
	Outcome Outcome             `json:"outcome"`
	Key     string              `json:"idempotency_key"`
	Payload domain.OrderPayload `json:"payload"`
	Order   *domain.OrderResult `json:"order,omitempty"`
	Warning string              `json:"warning,omitempty"`
}

// attempt is one checkout try. Its key and payload are reused for as long
// as the cart and request stay the same.
type attempt struct {
	fingerprint uint64
	payload     domain.OrderPayload
}

type Orchestrator struct {
	cart      *cart.Cart
	submitter Submitter
	queue     Queue
	log       *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	settings   domain.Settings
	submitting bool
	current    *attempt
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(c *cart.Cart, submitter Submitter, q Queue, log *slog.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		cart:      c,
		submitter: submitter,
		queue:     q,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UpdateSettings swaps the settings snapshot used by the next checkout.
func (o *Orchestrator) UpdateSettings(s domain.Settings) error {
	if err := settings.Validate(s); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = s.Clone()
	o.log.Info("settings updated", "version", s.Version, "organization_id", s.OrganizationID)
	return nil
}

func (o *Orchestrator) Settings() domain.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings.Clone()
}

// Quote prices the current cart for req without submitting anything.
func (o *Orchestrator) Quote(req PlaceOrderRequest) (domain.MoneyBreakdown, error) {
	s := o.Settings()
	if !s.Loaded() {
		return domain.MoneyBreakdown{}, domain.ErrSettingsNotLoaded
	}
	state := o.cart.Snapshot()
	b, err := price(state, req, s)
	if err != nil {
		return domain.MoneyBreakdown{}, err
	}
	return b.Round(s.CurrencyDecimals), nil
}

// PlaceOrder submits the cart. A network failure queues the order and
// reports OutcomeQueued; any other failure leaves the cart untouched.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	s, err := o.begin()
	if err != nil {
		return nil, err
	}
	placed := false
	defer func() { o.end(placed) }()

	if !s.Loaded() {
		return nil, domain.ErrSettingsNotLoaded
	}
	// the cart stays frozen until end so it cannot drift from the payload
	state := o.cart.Freeze()
	if len(state.Items) == 0 {
		return nil, domain.NewValidationError("cart", "is empty")
	}
	if err := validateRequest(req, s); err != nil {
		return nil, err
	}

	payload, err := o.payloadFor(state, req, s)
	if err != nil {
		return nil, err
	}
	key := payload.IdempotencyKey

	order, err := o.submitter.SubmitOrder(ctx, payload)
	if err == nil {
		o.log.Info("order submitted", "idempotency_key", key, "order_id", order.OrderID)
		placed = true
		return &PlaceOrderResult{Outcome: OutcomeSubmitted, Key: key, Payload: payload, Order: order}, nil
	}
	if !domain.IsNetwork(err) {
		o.log.Warn("order rejected", "idempotency_key", key, "error", err)
		return nil, err
	}

	o.log.Warn("order service unreachable, queueing order", "idempotency_key", key, "error", err)
	res := &PlaceOrderResult{Outcome: OutcomeQueued, Key: key, Payload: payload}
	// the caller may have given up already; the order still has to be queued
	if _, qerr := o.queue.Enqueue(context.WithoutCancel(ctx), domain.QueueEntry{
		IdempotencyKey: key,
		Payload:        payload,
		QueuedAt:       o.now(),
	}); qerr != nil {
		if !domain.IsPersistence(qerr) {
			return nil, qerr
		}
		res.Warning = qerr.Error()
	}
	placed = true
	return res, nil
}

func (o *Orchestrator) begin() (domain.Settings, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.submitting {
		return domain.Settings{}, domain.ErrSubmissionInProgress
	}
	o.submitting = true
	return o.settings.Clone(), nil
}

// end unfreezes the cart. Once the order is accepted or queued the cart is
// cleared and the attempt forgotten.
func (o *Orchestrator) end(placed bool) {
	o.cart.Release(placed)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false
	if placed {
		o.current = nil
	}
}

func (o *Orchestrator) payloadFor(state domain.CartState, req PlaceOrderRequest, s domain.Settings) (domain.OrderPayload, error) {
	fp, err := fingerprint(state, req, s.Version)
	if err != nil {
		return domain.OrderPayload{}, err
	}

	o.mu.Lock()
	prev := o.current
	o.mu.Unlock()
	if prev != nil && prev.fingerprint == fp {
		o.log.Debug("reusing checkout attempt", "idempotency_key", prev.payload.IdempotencyKey)
		return prev.payload, nil
	}

	breakdown, err := price(state, req, s)
	if err != nil {
		return domain.OrderPayload{}, err
	}
	breakdown = breakdown.Round(s.CurrencyDecimals)
	if !breakdown.Total.IsPositive() {
		return domain.OrderPayload{}, domain.NewValidationError("total", "must be greater than zero")
	}

	payload := buildPayload(uuid.NewString(), state, req, s, breakdown, o.now())
	o.mu.Lock()
	o.current = &attempt{fingerprint: fp, payload: payload}
	o.mu.Unlock()
	return payload, nil
}

func price(state domain.CartState, req PlaceOrderRequest, s domain.Settings) (domain.MoneyBreakdown, error) {
	if err := validateTip(req, s); err != nil {
		return domain.MoneyBreakdown{}, err
	}
	// tip percentages apply to the discounted base, so price once without it
	base := pricing.ComputeTotals(state.Items, state.DiscountPercent, s.Taxes, pricing.Extras{})

	extras := pricing.Extras{
		ServiceCharge: &s.Business.ServiceCharge,
		Tip:           req.Tip,
	}
	if req.TipPercent != nil {
		extras.Tip = base.TaxableBase.Mul(*req.TipPercent).Div(hundred)
	}
	if req.OrderType == domain.OrderTypeDelivery && s.Operational.DeliverySettings.Enabled {
		extras.DeliveryCharge = s.Operational.DeliverySettings.DeliveryCharge
	}
	return pricing.ComputeTotals(state.Items, state.DiscountPercent, s.Taxes, extras), nil
}

func buildPayload(key string, state domain.CartState, req PlaceOrderRequest, s domain.Settings,
	breakdown domain.MoneyBreakdown, now time.Time) domain.OrderPayload {
	lines := make([]domain.OrderLine, 0, len(state.Items))
	prep := 0
	for _, it := range state.Items {
		lines = append(lines, domain.OrderLine{
			ItemID:          it.ID,
			Name:            it.Name,
			UnitPrice:       it.UnitPrice,
			Quantity:        it.Quantity,
			DiscountPercent: it.DiscountPercent,
			PrepTimeMinutes: it.PrepTimeMinutes,
		})
		prep = max(prep, it.PrepTimeMinutes)
	}

	var delivery *domain.DeliveryMeta
	if req.Delivery != nil {
		d := *req.Delivery
		delivery = &d
	}

	return domain.OrderPayload{
		IdempotencyKey:       key,
		OrganizationID:       s.OrganizationID,
		Lines:                lines,
		CartDiscountPercent:  state.DiscountPercent,
		Breakdown:            breakdown,
		Currency:             s.Currency,
		Customer:             req.Customer,
		PaymentMethod:        req.PaymentMethod,
		OrderType:            req.OrderType,
		Delivery:             delivery,
		Status:               s.Operational.OrderManagement.DefaultStatus,
		SettingsVersion:      s.Version,
		EstimatedPrepMinutes: prep,
		CreatedAt:            now.UTC(),
	}
}

func validateRequest(req PlaceOrderRequest, s domain.Settings) error {
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return domain.NewValidationError("payment_method", "is required")
	}
	switch req.OrderType {
	case domain.OrderTypeDineIn, domain.OrderTypeTakeaway:
	case domain.OrderTypeDelivery:
		if !s.Operational.DeliverySettings.Enabled {
			return domain.NewValidationError("order_type", "delivery is disabled")
		}
		if req.Delivery == nil || strings.TrimSpace(req.Delivery.Address) == "" {
			return domain.NewValidationError("delivery.address", "is required for delivery orders")
		}
	default:
		return domain.NewValidationError("order_type", "must be dine_in, takeaway or delivery")
	}
	return validateTip(req, s)
}

func validateTip(req PlaceOrderRequest, s domain.Settings) error {
	tipping := s.Business.Tipping
	hasCustom := !req.Tip.IsZero()
	if req.Tip.IsNegative() {
		return domain.NewValidationError("tip", "must not be negative")
	}
	if !hasCustom && req.TipPercent == nil {
		return nil
	}
	if !tipping.Enabled {
		return domain.NewValidationError("tip", "tipping is disabled")
	}
	if hasCustom && req.TipPercent != nil {
		return domain.NewValidationError("tip", "give either an amount or a percentage")
	}
	if hasCustom {
		if !tipping.AllowCustom {
			return domain.NewValidationError("tip", "custom tips are not allowed")
		}
		return nil
	}
	for _, p := range tipping.Percentages {
		if p.Equal(*req.TipPercent) {
			return nil
		}
	}
	if tipping.AllowCustom && !req.TipPercent.IsNegative() && req.TipPercent.LessThanOrEqual(hundred) {
		return nil
	}
	return domain.NewValidationError("tip_percent", "is not one of the configured percentages")
}

// fingerprint identifies what would be sent. A changed cart, request or
// settings version yields a new value and so a new idempotency key.
func fingerprint(state domain.CartState, req PlaceOrderRequest, settingsVersion int) (uint64, error) {
	data, err := json.Marshal(struct {
		Cart     domain.CartState
		Request  PlaceOrderRequest
		Settings int
	}{state, req, settingsVersion})
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
