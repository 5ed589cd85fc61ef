package orderbook

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

const (
	TypeSnapshot = "orderbook_snapshot"
	TypeDelta    = "orderbook_delta"

	minPriceCents = 1
	maxPriceCents = 99
)

// Snapshot replaces the full book of one market. Yes and No hold
// [price_cents, quantity] pairs.
type Snapshot struct {
	Type         string     `json:"type"`
	MarketTicker string     `json:"market_ticker"`
	SID          *int64     `json:"sid,omitempty"`
	Seq          *int64     `json:"seq,omitempty"`
	Yes          [][2]int64 `json:"yes"`
	No           [][2]int64 `json:"no"`
}

// Delta changes the quantity resting at one price of one side.
type Delta struct {
	Type         string              `json:"type"`
	MarketTicker string              `json:"market_ticker"`
	PriceCents   int64               `json:"price"`
	Delta        int64               `json:"delta"`
	Side         domain.PositionSide `json:"side"`
	SID          *int64              `json:"sid,omitempty"`
	Seq          *int64              `json:"seq,omitempty"`
}

// UnmarshalJSON also accepts the price under "price_cents" when "price" is
// absent.
func (d *Delta) UnmarshalJSON(data []byte) error {
	type plain Delta
	var aux struct {
		plain
		PriceCentsAlt *int64 `json:"price_cents"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Delta(aux.plain)
	if d.PriceCents == 0 && aux.PriceCentsAlt != nil {
		d.PriceCents = *aux.PriceCentsAlt
	}
	return nil
}

func validPrice(cents int64) bool {
	return cents >= minPriceCents && cents <= maxPriceCents
}

func invalid(ticker, format string, args ...any) error {
	return fmt.Errorf("orderbook: %s: %s: %w", ticker, fmt.Sprintf(format, args...), domain.ErrInvalidMessage)
}

// levelsFrom converts snapshot pairs into ascending levels. Zero quantities
// are dropped and repeated prices are merged.
func levelsFrom(ticker string, pairs [][2]int64) ([]Level, error) {
	byPrice := make(map[int64]int64, len(pairs))
	for _, p := range pairs {
		price, qty := p[0], p[1]
		if !validPrice(price) {
			return nil, invalid(ticker, "snapshot price %d out of range", price)
		}
		if qty < 0 {
			return nil, invalid(ticker, "snapshot quantity %d at %d is negative", qty, price)
		}
		if qty == 0 {
			continue
		}
		byPrice[price] += qty
	}
	levels := make([]Level, 0, len(byPrice))
	for price, qty := range byPrice {
		levels = append(levels, Level{PriceCents: price, Quantity: qty})
	}
	sortLevels(levels, false)
	return levels, nil
}

func (d Delta) validate() error {
	if d.Side != domain.PositionYes && d.Side != domain.PositionNo {
		return invalid(d.MarketTicker, "unknown side %q", d.Side)
	}
	if !validPrice(d.PriceCents) {
		return invalid(d.MarketTicker, "delta price %d out of range", d.PriceCents)
	}
	if d.Delta == 0 {
		return invalid(d.MarketTicker, "zero delta at %d", d.PriceCents)
	}
	return nil
}
