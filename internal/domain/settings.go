package domain

import "github.com/shopspring/decimal"

type TaxKind string

const (
	TaxKindPercentage TaxKind = "percentage"
	TaxKindFixed      TaxKind = "fixed"
)

type TaxRule struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Rate    decimal.Decimal `json:"rate"`
	Kind    TaxKind         `json:"kind"`
	Enabled bool            `json:"enabled"`
}

type ServiceChargeBase string

const (
	ServiceChargeOnSubtotal ServiceChargeBase = "subtotal"
	ServiceChargeOnTotal    ServiceChargeBase = "total"
)

type ServiceChargeRule struct {
	Enabled    bool              `json:"enabled"`
	Percentage decimal.Decimal   `json:"percentage"`
	ApplyOn    ServiceChargeBase `json:"apply_on"`
}

type TippingRule struct {
	Enabled     bool              `json:"enabled"`
	Percentages []decimal.Decimal `json:"percentages"`
	AllowCustom bool              `json:"allow_custom"`
}

type BusinessSettings struct {
	ServiceCharge ServiceChargeRule `json:"service_charge"`
	Tipping       TippingRule       `json:"tipping"`
}

type DeliverySettings struct {
	Enabled        bool            `json:"enabled"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
}

type OrderManagement struct {
	DefaultStatus string `json:"default_status"`
}

type OperationalSettings struct {
	DeliverySettings DeliverySettings `json:"delivery_settings"`
	OrderManagement  OrderManagement  `json:"order_management"`
}

// Settings is a versioned snapshot of the configuration consumed at checkout.
// It is passed by value; a zero Version means nothing has been loaded.
type Settings struct {
	Version          int                 `json:"version"`
	OrganizationID   string              `json:"organization_id"`
	Currency         string              `json:"currency"`
	CurrencyDecimals int32               `json:"currency_decimals"`
	Taxes            []TaxRule           `json:"taxes"`
	Business         BusinessSettings    `json:"business"`
	Operational      OperationalSettings `json:"operational"`
}

func (s Settings) Loaded() bool {
	return s.Version > 0 && s.Currency != "" && s.OrganizationID != ""
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	c := s
	c.Taxes = append([]TaxRule(nil), s.Taxes...)
	c.Business.Tipping.Percentages = append([]decimal.Decimal(nil), s.Business.Tipping.Percentages...)
	return c
}
