// Package ticker parses exchange tickers of the form SERIES[-DATE[-KINDVALUE]]
// into market descriptors.
package ticker

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/shopspring/decimal"
)

const separator = "-"

var kinds = map[byte]domain.ThresholdKind{
	'B': domain.ThresholdBelow,
	'T': domain.ThresholdAbove,
	'R': domain.ThresholdRange,
	'E': domain.ThresholdExactly,
}

// ValueError reports a threshold segment whose kind was recognized but whose
// numeric part could not be parsed. The descriptor returned alongside it is
// still usable; only its Value is unset.
type ValueError struct {
	Ticker  string
	Segment string
	Err     error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("ticker %q: threshold %q: %v", e.Ticker, e.Segment, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }

// Parse builds a descriptor from ticker and an optional display title. It
// always returns a descriptor. A non-nil error is always a *ValueError.
func Parse(ticker, title string) (domain.MarketDescriptor, error) {
	parts := strings.Split(ticker, separator)
	d := domain.MarketDescriptor{
		Ticker: ticker,
		Series: parts[0],
		Title:  title,
	}
	if len(parts) > 1 {
		d.Date = parts[1]
	}
	if len(parts) < 3 || parts[2] == "" {
		return d, nil
	}

	seg := parts[2]
	kind, ok := kinds[seg[0]]
	if !ok {
		return d, nil
	}
	d.Kind = kind

	raw := seg[1:]
	v, err := decimal.NewFromString(raw)
	if err != nil {
		// Range bounds are free-form; only a plain number is kept.
		if kind == domain.ThresholdRange {
			return d, nil
		}
		return d, &ValueError{Ticker: ticker, Segment: seg, Err: err}
	}
	d.Value = decimal.NullDecimal{Decimal: v, Valid: true}
	return d, nil
}

// Series returns the series identifier of ticker, the text before the first
// separator.
func Series(ticker string) string {
	if i := strings.Index(ticker, separator); i >= 0 {
		return ticker[:i]
	}
	return ticker
}
