package domain

import "github.com/shopspring/decimal"

// MaxCartDiscountPercent caps the cart-level discount.
const MaxCartDiscountPercent = 50

type CartItem struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PrepTimeMinutes int             `json:"prep_time_minutes"`
}

// LineTotal is the item price times quantity before any discount.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartState is a copy of the cart taken at a point in time.
type CartState struct {
	Items           []CartItem      `json:"items"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}
