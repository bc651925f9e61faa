package domain

import "math"

// Rounding modes for the chinchiro adjustment.
const (
	RoundingRound = "round"
	RoundingFloor = "floor"
	RoundingCeil  = "ceil"
)

// AdjustSKU is the pseudo-sku of chinchiro adjustment lines.
const AdjustSKU = "CHINCHIRO_ADJUST"

// MainUnitPrice returns the applied unit price of a MAIN item sold in mode.
// In presale mode an explicit presale price wins; otherwise the presale
// discount is added to the normal price.
func MainUnitPrice(item MenuItem, mode PriceMode) int {
	if mode != PriceModePresale {
		return item.PriceNormal
	}
	if item.PricePresale > 0 {
		return item.PricePresale
	}
	return item.PriceNormal + item.PresaleDiscountAmount
}

// ChinchiroAdjustment returns the signed amount to add to a SET subtotal
// when the customer rolled multiplier.
func ChinchiroAdjustment(setSubtotal int, multiplier float64, rounding string) int {
	raw := float64(setSubtotal) * (multiplier - 1.0)
	switch rounding {
	case RoundingFloor:
		return int(math.Floor(raw))
	case RoundingCeil:
		return int(math.Ceil(raw))
	default:
		return int(math.Round(raw))
	}
}
