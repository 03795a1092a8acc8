package pricing

import (
	"fmt"

	"github.com/fjod/posify/internal/domain"
	"github.com/shopspring/decimal"
)

// ValidateItems rejects input the engine does not accept.
func ValidateItems(items []domain.CartItem) error {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if item.UnitPrice.IsNegative() {
			return domain.NewValidationError(field+".unit_price", "must not be negative")
		}
		if item.Quantity < 1 {
			return domain.NewValidationError(field+".quantity", "must be at least 1")
		}
		if err := ValidatePercent(field+".discount_percent", item.DiscountPercent, hundred); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePercent checks 0 <= p <= max.
func ValidatePercent(field string, p, max decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(max) {
		return domain.NewValidationError(field, fmt.Sprintf("must be between 0 and %s", max.String()))
	}
	return nil
}
