package cart

import "github.com/shopspring/decimal"

// LineItem is one product entry in a cart. Seller fields are denormalized at
// add time so the cart stays renderable after the catalog changes.
type LineItem struct {
	ProductId            string          `json:"productId"            validate:"required"`
	Title                string          `json:"title"                validate:"required"`
	Price                decimal.Decimal `json:"price"                validate:"required,gt=0"`
	Quantity             int32           `json:"quantity"             validate:"required,gt=0"`
	Unit                 string          `json:"unit"                 validate:"required"`
	MinimumOrderQuantity int32           `json:"minimumOrderQuantity" validate:"required,gt=0"`
	Image                string          `json:"image"`
	Category             string          `json:"category"`
	SellerId             string          `json:"sellerId"`
	SellerName           string          `json:"sellerName"`
}

// Cart is the aggregate document persisted by the stores. Items are unique by
// ProductId. The total fields are derived from Items and Region; Recalculate
// keeps them consistent.
type Cart struct {
	Items          []LineItem      `json:"items"`
	Region         string          `json:"region,omitempty"`
	TotalItems     int32           `json:"totalItems"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

func Empty() Cart {
	return Cart{
		Items:          []LineItem{},
		Subtotal:       decimal.Zero,
		DeliveryCharge: decimal.Zero,
		TotalAmount:    decimal.Zero,
	}
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// IndexOf returns the position of the item with the given productId or -1.
func (c Cart) IndexOf(productId string) int {
	for i, item := range c.Items {
		if item.ProductId == productId {
			return i
		}
	}
	return -1
}

func (c Cart) FindItem(productId string) (LineItem, bool) {
	i := c.IndexOf(productId)
	if i < 0 {
		return LineItem{}, false
	}
	return c.Items[i], true
}

// Clone deep-copies the cart so callers can mutate the copy freely.
func (c Cart) Clone() Cart {
	clone := c
	clone.Items = CloneItems(c.Items)
	return clone
}

func CloneItems(items []LineItem) []LineItem {
	cloned := make([]LineItem, len(items))
	copy(cloned, items)
	return cloned
}

// Recalculate rederives every total field from Items and Region.
func (c *Cart) Recalculate(tariff Tariff) {
	c.TotalItems, c.Subtotal = ComputeTotals(c.Items)
	c.DeliveryCharge = ComputeDeliveryCharge(c.Items, c.Region, tariff)
	c.TotalAmount = c.Subtotal.Add(c.DeliveryCharge)
}

// ConsistentTotals reports whether the stored totals match what Items and
// Region derive to. A remote cart's own totals are only trusted when they are
// consistent.
func (c Cart) ConsistentTotals(tariff Tariff) bool {
	totalItems, subtotal := ComputeTotals(c.Items)
	if c.TotalItems != totalItems || !c.Subtotal.Equal(subtotal) {
		return false
	}
	charge := ComputeDeliveryCharge(c.Items, c.Region, tariff)
	return c.DeliveryCharge.Equal(charge) && c.TotalAmount.Equal(subtotal.Add(charge))
}
