package pricing

import (
	"testing"

	"github.com/fjod/posify/internal/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func buildItems(cents []int64, quantities []int, discounts []int) []domain.CartItem {
	n := min(len(cents), len(quantities), len(discounts))
	items := make([]domain.CartItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.CartItem{
			ID:              string(rune('a' + i%26)),
			UnitPrice:       decimal.New(cents[i], -2),
			Quantity:        quantities[i],
			DiscountPercent: decimal.NewFromInt(int64(discounts[i])),
		})
	}
	return items
}

// TestTotalIsNeverNegative checks total >= 0 for any non-negative cart.
func TestTotalIsNeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("total >= 0", prop.ForAll(
		func(cents []int64, quantities []int, discounts []int, cartDiscount int, taxRate int64) bool {
			items := buildItems(cents, quantities, discounts)
			taxes := []domain.TaxRule{{ID: "t", Rate: decimal.New(taxRate, -1), Kind: domain.TaxKindPercentage, Enabled: true}}
			b := ComputeTotals(items, decimal.NewFromInt(int64(cartDiscount)), taxes, Extras{})
			return !b.Total.IsNegative() && !b.TaxableBase.IsNegative()
		},
		gen.SliceOf(gen.Int64Range(0, 100000)),
		gen.SliceOf(gen.IntRange(1, 50)),
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(0, 50),
		gen.Int64Range(0, 300),
	))

	properties.TestingRun(t)
}

// TestCartDiscountRoundTrip checks that applying and then removing a cart
// discount gives back the exact breakdown computed without it.
func TestCartDiscountRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	taxes := []domain.TaxRule{{ID: "t", Rate: decimal.RequireFromString("8.25"), Kind: domain.TaxKindPercentage, Enabled: true}}

	properties.Property("discount round trip", prop.ForAll(
		func(cents []int64, quantities []int, discounts []int, cartDiscount int) bool {
			items := buildItems(cents, quantities, discounts)
			before := ComputeTotals(items, decimal.Zero, taxes, Extras{})
			_ = ComputeTotals(items, decimal.NewFromInt(int64(cartDiscount)), taxes, Extras{})
			after := ComputeTotals(items, decimal.Zero, taxes, Extras{})

			tolerance := decimal.New(1, -9)
			return before.Total.Sub(after.Total).Abs().LessThanOrEqual(tolerance) &&
				before.TaxAmount.Equal(after.TaxAmount) &&
				before.CartDiscountAmount.IsZero() && after.CartDiscountAmount.IsZero()
		},
		gen.SliceOf(gen.Int64Range(0, 100000)),
		gen.SliceOf(gen.IntRange(1, 50)),
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
