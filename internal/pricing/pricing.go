// Package pricing turns cart items, discounts and tax configuration into a
// monetary breakdown. Everything here is pure: no I/O, no shared state, and
// no rounding. Callers round once with domain.MoneyBreakdown.Round.
package pricing

import (
	"github.com/fjod/posify/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Extras are the optional charges added after tax.
type Extras struct {
	ServiceCharge  *domain.ServiceChargeRule
	Tip            decimal.Decimal
	DeliveryCharge decimal.Decimal
}

// ComputeTotals prices items. Input must already be non-negative and
// normalised, see ValidateItems.
func ComputeTotals(items []domain.CartItem, cartDiscountPercent decimal.Decimal, taxes []domain.TaxRule, extras Extras) domain.MoneyBreakdown {
	if len(items) == 0 {
		return domain.MoneyBreakdown{}
	}

	subtotal := decimal.Zero
	itemDiscountTotal := decimal.Zero
	for _, item := range items {
		line := item.LineTotal()
		subtotal = subtotal.Add(line)
		itemDiscountTotal = itemDiscountTotal.Add(line.Mul(item.DiscountPercent).Div(hundred))
	}

	afterItemDiscounts := subtotal.Sub(itemDiscountTotal)
	cartDiscount := afterItemDiscounts.Mul(cartDiscountPercent).Div(hundred)
	if cartDiscount.GreaterThan(afterItemDiscounts) {
		cartDiscount = afterItemDiscounts
	}
	taxableBase := afterItemDiscounts.Sub(cartDiscount)

	taxLines, taxAmount := applyTaxes(taxableBase, taxes)
	serviceCharge := computeServiceCharge(extras.ServiceCharge, taxableBase, taxAmount)

	total := taxableBase.
		Add(taxAmount).
		Add(serviceCharge).
		Add(extras.Tip).
		Add(extras.DeliveryCharge)

	return domain.MoneyBreakdown{
		Subtotal:           subtotal,
		ItemDiscountTotal:  itemDiscountTotal,
		CartDiscountAmount: cartDiscount,
		TaxableBase:        taxableBase,
		TaxAmount:          taxAmount,
		Taxes:              taxLines,
		ServiceCharge:      serviceCharge,
		Tip:                extras.Tip,
		DeliveryCharge:     extras.DeliveryCharge,
		Total:              total,
	}
}

// applyTaxes evaluates enabled rules in list order. Rules do not compound:
// each one reads the same base.
func applyTaxes(base decimal.Decimal, taxes []domain.TaxRule) ([]domain.TaxLine, decimal.Decimal) {
	var lines []domain.TaxLine
	sum := decimal.Zero
	for _, rule := range taxes {
		if !rule.Enabled {
			continue
		}
		var amount decimal.Decimal
		switch rule.Kind {
		case domain.TaxKindFixed:
			amount = rule.Rate
		default:
			amount = base.Mul(rule.Rate).Div(hundred)
		}
		sum = sum.Add(amount)
		lines = append(lines, domain.TaxLine{
			RuleID: rule.ID,
			Name:   rule.Name,
			Kind:   rule.Kind,
			Rate:   rule.Rate,
			Amount: amount,
		})
	}
	return lines, sum
}

func computeServiceCharge(rule *domain.ServiceChargeRule, taxableBase, taxAmount decimal.Decimal) decimal.Decimal {
	if rule == nil || !rule.Enabled || !rule.Percentage.IsPositive() {
		return decimal.Zero
	}
	base := taxableBase
	if rule.ApplyOn == domain.ServiceChargeOnTotal {
		base = base.Add(taxAmount)
	}
	return base.Mul(rule.Percentage).Div(hundred)
}
