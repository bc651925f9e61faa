package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyOrder is returned when no requested line could be priced.
var ErrEmptyOrder = errors.New("order has no valid items")

// LineType is how the register asked for a line to be sold.
type LineType string

const (
	LineSet        LineType = "SET"
	LineMainSingle LineType = "MAIN_SINGLE"
	LineSideSingle LineType = "SIDE_SINGLE"
)

// LineRequest is one line of an incoming order before pricing.
//
// A SET is a main with any number of sides at their set price and an
// optional chinchiro roll. MAIN_SINGLE uses MainSKU, SIDE_SINGLE uses SideSKU.
type LineRequest struct {
	Type                LineType  `json:"type"`
	Qty                 int       `json:"qty"`
	MainSKU             string    `json:"mainSku,omitempty"`
	SideSKUs            []string  `json:"sideSkus,omitempty"`
	SideSKU             string    `json:"sideSku,omitempty"`
	PriceMode           PriceMode `json:"priceMode,omitempty"`
	ChinchiroMultiplier *float64  `json:"chinchiroMultiplier,omitempty"`
	ChinchiroResult     string    `json:"chinchiroResult,omitempty"`
}

// SkippedLine explains why a requested line was dropped.
type SkippedLine struct {
	Index  int
	Reason string
}

// PriceLines turns requests into priced line items using the current
// catalog and settings. Lines naming unknown or mis-categorized skus are
// skipped and reported; if nothing remains ErrEmptyOrder is returned.
func (s *State) PriceLines(reqs []LineRequest) ([]LineItem, []SkippedLine, error) {
	var (
		items   []LineItem
		skipped []SkippedLine
	)
	skip := func(i int, format string, args ...any) {
		skipped = append(skipped, SkippedLine{Index: i, Reason: fmt.Sprintf(format, args...)})
	}

	for i, req := range reqs {
		qty := req.Qty
		if qty <= 0 {
			qty = 1
		}
		mode := req.PriceMode
		if mode == PriceModeNone {
			mode = PriceModeNormal
		}

		switch req.Type {
		case LineSet:
			main := s.FindMenuItem(req.MainSKU)
			if main == nil || main.Category != CategoryMain {
				skip(i, "unknown main sku %q", req.MainSKU)
				continue
			}
			unit := MainUnitPrice(*main, mode)
			items = append(items, LineItem{
				SKU: main.SKU, Name: main.Name, Qty: qty,
				UnitPriceApplied: unit, PriceMode: mode, Kind: KindMain,
			})
			setSubtotal := unit
			for _, sku := range req.SideSKUs {
				side := s.FindMenuItem(sku)
				if side == nil || side.Category != CategorySide {
					skip(i, "unknown side sku %q", sku)
					continue
				}
				items = append(items, LineItem{
					SKU: side.SKU, Name: side.Name, Qty: qty,
					UnitPriceApplied: side.PriceAsSide, Kind: KindSideAsSet,
				})
				setSubtotal += side.PriceAsSide
			}
			if adj, ok := s.chinchiroLine(req, setSubtotal, qty); ok {
				items = append(items, adj)
			}

		case LineMainSingle:
			main := s.FindMenuItem(req.MainSKU)
			if main == nil || main.Category != CategoryMain {
				skip(i, "unknown main sku %q", req.MainSKU)
				continue
			}
			items = append(items, LineItem{
				SKU: main.SKU, Name: main.Name, Qty: qty,
				UnitPriceApplied: MainUnitPrice(*main, mode), PriceMode: mode, Kind: KindMainSingle,
			})

		case LineSideSingle:
			side := s.FindMenuItem(req.SideSKU)
			if side == nil || side.Category != CategorySide {
				skip(i, "unknown side sku %q", req.SideSKU)
				continue
			}
			items = append(items, LineItem{
				SKU: side.SKU, Name: side.Name, Qty: qty,
				UnitPriceApplied: side.PriceSingle, Kind: KindSideSingle,
			})

		default:
			skip(i, "unknown line type %q", req.Type)
		}
	}

	if len(items) == 0 {
		return nil, skipped, ErrEmptyOrder
	}
	return items, skipped, nil
}

func (s *State) chinchiroLine(req LineRequest, setSubtotal, qty int) (LineItem, bool) {
	if !s.Settings.Chinchiro.Enabled || req.ChinchiroMultiplier == nil {
		return LineItem{}, false
	}
	mult := *req.ChinchiroMultiplier
	if mult == 1 {
		return LineItem{}, false
	}
	adj := ChinchiroAdjustment(setSubtotal, mult, s.Settings.Chinchiro.Rounding)
	if adj == 0 {
		return LineItem{}, false
	}
	label := req.ChinchiroResult
	if label == "" {
		label = fmt.Sprintf("%.2fx", mult)
	}
	return LineItem{
		SKU:              AdjustSKU,
		Name:             fmt.Sprintf("Chinchiro (%s)", label),
		Qty:              qty,
		UnitPriceApplied: adj,
		Kind:             KindAdjust,
	}, true
}
