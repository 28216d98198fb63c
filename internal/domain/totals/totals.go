// Package totals derives the subtotal and total of a draft order.
package totals

import (
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
)

// Totals holds derived amounts. Values are unrounded; NaN means at least one
// input could not be read as a number.
type Totals struct {
	Subtotal float64
	Total    float64
}

// Recalculate sums item prices and applies the delivery fee and discount.
// Quantity is not factored in: each item's price is added once.
func Recalculate(items []receipt.LineItem, deliveryFees, discount receipt.Value) Totals {
	var subtotal float64
	for _, item := range items {
		subtotal += item.Price.Number()
	}

	return Totals{
		Subtotal: subtotal,
		Total:    subtotal + deliveryFees.Number() - discount.Number(),
	}
}

// Apply recalculates rec in place.
func Apply(rec *receipt.OrderRecord) Totals {
	t := Recalculate(rec.OrderItems, rec.DeliveryFees, rec.Discount)
	rec.SubtotalAmount = receipt.Of(t.Subtotal)
	rec.Total = receipt.Of(t.Total)
	return t
}
