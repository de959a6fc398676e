package cart

import "github.com/shopspring/decimal"

// ComputeTotals sums quantities and price*quantity over the given items. An
// empty or nil list yields zero for both.
func ComputeTotals(items []LineItem) (totalItems int32, subtotal decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		totalItems += item.Quantity
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt32(item.Quantity)))
	}
	return totalItems, subtotal
}
