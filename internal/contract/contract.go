// Package contract defines the JSON body of the order service API. Both the
// device client and the reference order service use these types.
package contract

import (
	"strings"
	"time"

	"github.com/fjod/posify/internal/domain"
	"github.com/shopspring/decimal"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type OrderItem struct {
	ItemID          string          `json:"itemId"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	PrepTimeMinutes int             `json:"prepTimeMinutes,omitempty"`
}

type TaxLine struct {
	RuleID string          `json:"ruleId"`
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Delivery struct {
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
	TableID string `json:"tableId,omitempty"`
}

type CreateOrderRequest struct {
	OrganizationID    string          `json:"organizationId"`
	Items             []OrderItem     `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	ItemDiscountTotal decimal.Decimal `json:"itemDiscountTotal"`
	CartDiscount      decimal.Decimal `json:"cartDiscount"`
	Total             decimal.Decimal `json:"total"`
	Tax               []TaxLine       `json:"tax"`
	ServiceCharge     decimal.Decimal `json:"serviceCharge"`
	Tip               decimal.Decimal `json:"tip"`
	DeliveryCharge    decimal.Decimal `json:"deliveryCharge"`
	Currency          string          `json:"currency"`
	PaymentMethod     string          `json:"paymentMethod"`
	OrderType         string          `json:"orderType"`
	Customer          Customer        `json:"customer"`
	Delivery          *Delivery       `json:"delivery,omitempty"`
	Status            string          `json:"status"`
	IdempotencyKey    string          `json:"idempotencyKey"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type CreateOrderResponse struct {
	OrderID     string `json:"orderId"`
	OrderNumber int64  `json:"orderNumber"`
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// FromPayload maps a frozen order payload to the request body. Amounts are
// taken as they are; the payload is already rounded.
func FromPayload(p domain.OrderPayload) CreateOrderRequest {
	items := make([]OrderItem, 0, len(p.Lines))
	for _, l := range p.Lines {
		items = append(items, OrderItem{
			ItemID:          l.ItemID,
			Name:            l.Name,
			UnitPrice:       l.UnitPrice,
			Quantity:        l.Quantity,
			DiscountPercent: l.DiscountPercent,
			PrepTimeMinutes: l.PrepTimeMinutes,
		})
	}
	taxes := make([]TaxLine, 0, len(p.Breakdown.Taxes))
	for _, t := range p.Breakdown.Taxes {
		taxes = append(taxes, TaxLine{
			RuleID: t.RuleID,
			Name:   t.Name,
			Kind:   string(t.Kind),
			Rate:   t.Rate,
			Amount: t.Amount,
		})
	}

	req := CreateOrderRequest{
		OrganizationID:    p.OrganizationID,
		Items:             items,
		Subtotal:          p.Breakdown.Subtotal,
		ItemDiscountTotal: p.Breakdown.ItemDiscountTotal,
		CartDiscount:      p.Breakdown.CartDiscountAmount,
		Total:             p.Breakdown.Total,
		Tax:               taxes,
		ServiceCharge:     p.Breakdown.ServiceCharge,
		Tip:               p.Breakdown.Tip,
		DeliveryCharge:    p.Breakdown.DeliveryCharge,
		Currency:          p.Currency,
		PaymentMethod:     p.PaymentMethod,
		OrderType:         string(p.OrderType),
		Customer:          Customer(p.Customer),
		Status:            p.Status,
		IdempotencyKey:    p.IdempotencyKey,
		CreatedAt:         p.CreatedAt,
	}
	if p.Delivery != nil {
		d := Delivery(*p.Delivery)
		req.Delivery = &d
	}
	return req
}

func (r CreateOrderResponse) ToResult() *domain.OrderResult {
	return &domain.OrderResult{
		OrderID:     r.OrderID,
		OrderNumber: r.OrderNumber,
		Status:      r.Status,
		Duplicate:   r.Duplicate,
	}
}

// Validate checks the request shape on the receiving side.
func (r CreateOrderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.OrganizationID) == "":
		return domain.NewValidationError("organizationId", "is required")
	case strings.TrimSpace(r.IdempotencyKey) == "":
		return domain.NewValidationError("idempotencyKey", "is required")
	case len(r.Items) == 0:
		return domain.NewValidationError("items", "must not be empty")
	case r.Currency == "":
		return domain.NewValidationError("currency", "is required")
	case r.PaymentMethod == "":
		return domain.NewValidationError("paymentMethod", "is required")
	case !r.Total.IsPositive():
		return domain.NewValidationError("total", "must be positive")
	}
	for _, it := range r.Items {
		if it.Quantity < 1 {
			return domain.NewValidationError("items.quantity", "must be at least 1")
		}
		if it.UnitPrice.IsNegative() {
			return domain.NewValidationError("items.unitPrice", "must not be negative")
		}
	}
	if r.OrderType == string(domain.OrderTypeDelivery) && (r.Delivery == nil || r.Delivery.Address == "") {
		return domain.NewValidationError("delivery.address", "is required for delivery orders")
	}
	return nil
}
