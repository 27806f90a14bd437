// Package pricing holds the monetary math for cart and order lines.
// All values are decimal; callers round with Round2 only when persisting.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Subtotal returns unitPrice * quantity.
func Subtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// FinalPrice computes the amount charged for a line: the subtotal less the
// discount (clamped at zero), plus tax on the discounted amount.
//
// Inputs must be non-negative and taxPercent must be a percentage (18 for
// 18%); violating that is a caller bug, not an error condition.
func FinalPrice(unitPrice decimal.Decimal, quantity int, discount, taxPercent decimal.Decimal) decimal.Decimal {
	afterDiscount := Subtotal(unitPrice, quantity).Sub(discount)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}
	tax := afterDiscount.Mul(taxPercent).Div(hundred)
	return afterDiscount.Add(tax)
}

// TaxAmount returns the tax charged on a line with the given subtotal and
// discount. The discounted amount is clamped at zero before applying tax.
func TaxAmount(subtotal, discount, taxPercent decimal.Decimal) decimal.Decimal {
	afterDiscount := subtotal.Sub(discount)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}
	return afterDiscount.Mul(taxPercent).Div(hundred)
}

// Percentage returns percent% of amount, clamped at zero.
func Percentage(amount, percent decimal.Decimal) decimal.Decimal {
	v := amount.Mul(percent).Div(hundred)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Round2 rounds to two decimal places, half away from zero. Applied at
// persistence points only, never at intermediate steps.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
