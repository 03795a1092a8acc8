package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaxLine struct {
	RuleID string          `json:"rule_id"`
	Name   string          `json:"name"`
	Kind   TaxKind         `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// MoneyBreakdown is derived from a cart and never stored outside the order it belongs to.
type MoneyBreakdown struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	ItemDiscountTotal  decimal.Decimal `json:"item_discount_total"`
	CartDiscountAmount decimal.Decimal `json:"cart_discount_amount"`
	TaxableBase        decimal.Decimal `json:"taxable_base"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	Taxes              []TaxLine       `json:"taxes"`
	ServiceCharge      decimal.Decimal `json:"service_charge"`
	Tip                decimal.Decimal `json:"tip"`
	DeliveryCharge     decimal.Decimal `json:"delivery_charge"`
	Total              decimal.Decimal `json:"total"`
}

// Round rounds every amount to the given number of decimal places.
// It is meant to be called once, when a breakdown is displayed or persisted.
func (b MoneyBreakdown) Round(places int32) MoneyBreakdown {
	r := MoneyBreakdown{
		Subtotal:           b.Subtotal.Round(places),
		ItemDiscountTotal:  b.ItemDiscountTotal.Round(places),
		CartDiscountAmount: b.CartDiscountAmount.Round(places),
		TaxableBase:        b.TaxableBase.Round(places),
		TaxAmount:          b.TaxAmount.Round(places),
		ServiceCharge:      b.ServiceCharge.Round(places),
		Tip:                b.Tip.Round(places),
		DeliveryCharge:     b.DeliveryCharge.Round(places),
		Total:              b.Total.Round(places),
	}
	if b.Taxes != nil {
		r.Taxes = make([]TaxLine, len(b.Taxes))
		for i, t := range b.Taxes {
			t.Amount = t.Amount.Round(places)
			r.Taxes[i] = t
		}
	}
	return r
}

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypeDelivery OrderType = "delivery"
)

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type DeliveryMeta struct {
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
	TableID string `json:"table_id,omitempty"`
}

type OrderLine struct {
	ItemID          string          `json:"item_id"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PrepTimeMinutes int             `json:"prep_time_minutes"`
}

// OrderPayload is the immutable snapshot sent to the order service.
// Re-submissions reuse it as is, together with its idempotency key.
type OrderPayload struct {
	IdempotencyKey       string          `json:"idempotency_key"`
	OrganizationID       string          `json:"organization_id"`
	Lines                []OrderLine     `json:"lines"`
	CartDiscountPercent  decimal.Decimal `json:"cart_discount_percent"`
	Breakdown            MoneyBreakdown  `json:"breakdown"`
	Currency             string          `json:"currency"`
	Customer             Customer        `json:"customer"`
	PaymentMethod        string          `json:"payment_method"`
	OrderType            OrderType       `json:"order_type"`
	Delivery             *DeliveryMeta   `json:"delivery,omitempty"`
	Status               string          `json:"status"`
	SettingsVersion      int             `json:"settings_version"`
	EstimatedPrepMinutes int             `json:"estimated_prep_minutes"`
	CreatedAt            time.Time       `json:"created_at"`
}

// OrderResult is what the order service returns for an accepted order.
type OrderResult struct {
	OrderID     string `json:"order_id"`
	OrderNumber int64  `json:"order_number"`
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate"`
}
