package contract

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fjod/posify/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() domain.OrderPayload {
	return domain.OrderPayload{
		IdempotencyKey: "key-1",
		OrganizationID: "org-1",
		Lines: []domain.OrderLine{{
			ItemID: "burger", Name: "Burger", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2,
		}},
		Breakdown: domain.MoneyBreakdown{
			Subtotal:           decimal.RequireFromString("25.00"),
			ItemDiscountTotal:  decimal.RequireFromString("2.50"),
			CartDiscountAmount: decimal.RequireFromString("2.25"),
			TaxAmount:          decimal.RequireFromString("1.62"),
			Taxes: []domain.TaxLine{{
				RuleID: "vat", Name: "VAT", Kind: domain.TaxKindPercentage,
				Rate: decimal.RequireFromString("8"), Amount: decimal.RequireFromString("1.62"),
			}},
			Total: decimal.RequireFromString("21.87"),
		},
		Currency:      "USD",
		Customer:      domain.Customer{Name: "Ann"},
		PaymentMethod: "cash",
		OrderType:     domain.OrderTypeDelivery,
		Delivery:      &domain.DeliveryMeta{Address: "1 Main St"},
		Status:        "pending",
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFromPayload(t *testing.T) {
	req := FromPayload(samplePayload())

	assert.Equal(t, "org-1", req.OrganizationID)
	assert.Equal(t, "key-1", req.IdempotencyKey)
	assert.Equal(t, "21.87", req.Total.StringFixed(2))
	assert.Equal(t, "2.25", req.CartDiscount.StringFixed(2))
	require.Len(t, req.Items, 1)
	assert.Equal(t, 2, req.Items[0].Quantity)
	require.Len(t, req.Tax, 1)
	assert.Equal(t, "percentage", req.Tax[0].Kind)
	require.NotNil(t, req.Delivery)
	assert.Equal(t, "1 Main St", req.Delivery.Address)
	assert.NoError(t, req.Validate())
}

func TestRequestUsesCamelCaseKeys(t *testing.T) {
	data, err := json.Marshal(FromPayload(samplePayload()))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, k := range []string{
		"organizationId", "items", "subtotal", "itemDiscountTotal", "cartDiscount", "total",
		"tax", "serviceCharge", "tip", "deliveryCharge", "currency", "paymentMethod",
		"orderType", "customer", "delivery", "status", "idempotencyKey",
	} {
		assert.Contains(t, raw, k)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
		field  string
	}{
		{"missing organization", func(r *CreateOrderRequest) { r.OrganizationID = "" }, "organizationId"},
		{"missing key", func(r *CreateOrderRequest) { r.IdempotencyKey = " " }, "idempotencyKey"},
		{"no items", func(r *CreateOrderRequest) { r.Items = nil }, "items"},
		{"zero total", func(r *CreateOrderRequest) { r.Total = decimal.Zero }, "total"},
		{"bad quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, "items.quantity"},
		{"delivery without address", func(r *CreateOrderRequest) { r.Delivery = nil }, "delivery.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := FromPayload(samplePayload())
			tt.mutate(&req)

			err := req.Validate()
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
