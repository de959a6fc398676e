package cart

import "github.com/shopspring/decimal"

// Tariff is the delivery charge table: a flat charge per distinct line item,
// plus a per-region surcharge once a delivery region has been chosen. Regions
// absent from Surcharges pay DefaultSurcharge.
type Tariff struct {
	BaseCharge       int64
	DefaultSurcharge int64
	Surcharges       map[string]int64
}

func DefaultTariff() Tariff {
	return Tariff{
		BaseCharge:       100,
		DefaultSurcharge: 300,
		Surcharges: map[string]int64{
			"dhaka":      100,
			"chattogram": 200,
		},
	}
}

// ComputeDeliveryCharge derives the delivery charge from the number of
// distinct line items and the chosen region. With no region chosen the charge
// is len(items) * BaseCharge; an empty cart is never charged.
func ComputeDeliveryCharge(items []LineItem, region string, tariff Tariff) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	charge := tariff.BaseCharge * int64(len(items))
	if region != "" {
		surcharge, ok := tariff.Surcharges[region]
		if !ok {
			surcharge = tariff.DefaultSurcharge
		}
		charge += surcharge
	}
	return decimal.NewFromInt(charge)
}
