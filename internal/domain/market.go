package domain

import "github.com/shopspring/decimal"

// ThresholdKind is the comparison encoded in the last segment of a ticker.
type ThresholdKind string

const (
	ThresholdNone    ThresholdKind = ""
	ThresholdAbove   ThresholdKind = "above"   // T
	ThresholdBelow   ThresholdKind = "below"   // B
	ThresholdExactly ThresholdKind = "exactly" // E
	ThresholdRange   ThresholdKind = "range"   // R
)

// MarketDescriptor is the structured form of a market ticker such as
// KXFED-23DEC-T3.00. Fields the ticker does not carry are left zero.
type MarketDescriptor struct {
	Ticker string
	Series string
	Date   string
	Kind   ThresholdKind
	Value  decimal.NullDecimal
	Title  string
}

// HasThreshold reports whether both a kind and a numeric value were parsed.
func (m MarketDescriptor) HasThreshold() bool {
	return m.Kind != ThresholdNone && m.Value.Valid
}
