// Package units converts line-item quantities and prices to a canonical unit
// basis so documents priced per ton, pound or kilogram can be compared.
//
// Conversion is value-preserving: NormalizedQty x NormalizedUnitPrice equals
// Quantity x UnitPrice. Unrecognized units pass through unchanged; a unit
// mismatch surfaces later as a quantity or price failure in the engine.
package units

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/ap-engine/ap"
)

const (
	BaseWeight = "kg"
	BaseCount  = "pcs"
)

// weightFactors maps a weight unit to kilograms.
var weightFactors = map[string]decimal.Decimal{
	"kg":        decimal.NewFromInt(1),
	"kgs":       decimal.NewFromInt(1),
	"kilogram":  decimal.NewFromInt(1),
	"kilograms": decimal.NewFromInt(1),
	"ton":       decimal.NewFromInt(1000),
	"tons":      decimal.NewFromInt(1000),
	"tonne":     decimal.NewFromInt(1000),
	"tonnes":    decimal.NewFromInt(1000),
	"lb":        decimal.RequireFromString("0.453592"),
	"lbs":       decimal.RequireFromString("0.453592"),
	"pound":     decimal.RequireFromString("0.453592"),
	"pounds":    decimal.RequireFromString("0.453592"),
	"oz":        decimal.RequireFromString("0.0283495"),
	"ounce":     decimal.RequireFromString("0.0283495"),
	"ounces":    decimal.RequireFromString("0.0283495"),
}

var countSynonyms = map[string]bool{
	"pcs": true, "pc": true, "piece": true, "pieces": true,
	"each": true, "ea": true,
	"unit": true, "units": true,
	"set": true, "sets": true,
	"pair": true, "pairs": true,
	"pack": true, "packs": true,
}

// Canonical returns the canonical unit name and the factor that converts one
// of the given unit into it. Unknown units return themselves, lowercased,
// with factor 1.
func Canonical(unit string) (string, decimal.Decimal) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if f, ok := weightFactors[u]; ok {
		return BaseWeight, f
	}
	if countSynonyms[u] {
		return BaseCount, decimal.NewFromInt(1)
	}
	return u, decimal.NewFromInt(1)
}

// Normalize returns a copy of item with the normalized fields filled in.
// It is pure and safe to apply repeatedly.
func Normalize(item ap.LineItem) ap.LineItem {
	unit, factor := Canonical(item.Unit)
	item.NormalizedUnit = unit
	item.NormalizedQty = item.Quantity.Mul(factor)
	item.NormalizedUnitPrice = nil

	// Price per canonical unit does not depend on quantity, so a line with a
	// missing quantity still gets a comparable price.
	if item.UnitPrice != nil {
		price := item.UnitPrice.Div(factor)
		item.NormalizedUnitPrice = &price
	}
	return item
}

// NormalizeAll normalizes every item in place and returns the slice.
func NormalizeAll(items []ap.LineItem) []ap.LineItem {
	for i := range items {
		items[i] = Normalize(items[i])
	}
	return items
}
