// Package orderbook maintains per-market order books from snapshot and delta
// feed messages.
//
// Snapshots only populate the ask collections, and a delta's sign selects its
// target: positive deltas adjust asks, negative deltas adjust bids. This
// mirrors the exchange's feed encoding and must not be normalized.
package orderbook

import (
	"fmt"
	"slices"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/shopspring/decimal"
)

// Level is one price level. PriceCents is between 1 and 99 inclusive and
// Quantity is positive while the level is present.
type Level struct {
	PriceCents int64 `json:"price_cents"`
	Quantity   int64 `json:"quantity"`
}

// Price is the level price in dollars.
func (l Level) Price() decimal.Decimal {
	return decimal.New(l.PriceCents, -2)
}

// Book is the order book of a single market. Ask collections are sorted
// ascending by price and bid collections descending.
type Book struct {
	Ticker     string
	YesBids    []Level
	YesAsks    []Level
	NoBids     []Level
	NoAsks     []Level
	Sequence   int64
	LastUpdate time.Time
}

// ApplySnapshot replaces the whole book with msg. An invalid snapshot leaves
// the book untouched.
func (b *Book) ApplySnapshot(msg Snapshot, now time.Time) error {
	yes, err := levelsFrom(msg.MarketTicker, msg.Yes)
	if err != nil {
		return err
	}
	no, err := levelsFrom(msg.MarketTicker, msg.No)
	if err != nil {
		return err
	}
	var seq int64
	if msg.Seq != nil {
		seq = *msg.Seq
	}
	*b = Book{
		Ticker:     msg.MarketTicker,
		YesAsks:    yes,
		NoAsks:     no,
		Sequence:   seq,
		LastUpdate: now,
	}
	return nil
}

// ApplyDelta adjusts one level. A level whose quantity drops to zero or below
// is removed; a negative delta at an absent price is a no-op apart from the
// sequence and timestamp.
func (b *Book) ApplyDelta(msg Delta, now time.Time) error {
	if err := msg.validate(); err != nil {
		return err
	}
	// seq 0 is treated as absent, like a missing field.
	hasSeq := msg.Seq != nil && *msg.Seq != 0
	if hasSeq && *msg.Seq <= b.Sequence {
		return fmt.Errorf("orderbook: %s: seq %d after %d: %w", msg.MarketTicker, *msg.Seq, b.Sequence, domain.ErrStaleSequence)
	}

	bid := msg.Delta < 0
	levels := b.levels(msg.Side, bid)

	i := slices.IndexFunc(*levels, func(l Level) bool { return l.PriceCents == msg.PriceCents })
	switch {
	case i >= 0:
		(*levels)[i].Quantity += msg.Delta
		if (*levels)[i].Quantity <= 0 {
			*levels = slices.Delete(*levels, i, i+1)
		}
	case msg.Delta > 0:
		*levels = append(*levels, Level{PriceCents: msg.PriceCents, Quantity: msg.Delta})
		sortLevels(*levels, bid)
	}

	if hasSeq {
		b.Sequence = *msg.Seq
	} else {
		b.Sequence++
	}
	b.LastUpdate = now
	return nil
}

func (b *Book) levels(side domain.PositionSide, bid bool) *[]Level {
	switch {
	case side == domain.PositionYes && bid:
		return &b.YesBids
	case side == domain.PositionYes:
		return &b.YesAsks
	case bid:
		return &b.NoBids
	default:
		return &b.NoAsks
	}
}

func sortLevels(levels []Level, descending bool) {
	slices.SortFunc(levels, func(a, b Level) int {
		if descending {
			return int(b.PriceCents - a.PriceCents)
		}
		return int(a.PriceCents - b.PriceCents)
	})
}

// Levels returns the collection for side, bids or asks.
func (b *Book) Levels(side domain.PositionSide, bid bool) []Level {
	return *b.levels(side, bid)
}

// Best returns the head level of a collection.
func (b *Book) Best(side domain.PositionSide, bid bool) (Level, bool) {
	levels := *b.levels(side, bid)
	if len(levels) == 0 {
		return Level{}, false
	}
	return levels[0], true
}

// BestBid returns the best bid price of side in dollars.
func (b *Book) BestBid(side domain.PositionSide) (decimal.Decimal, bool) {
	l, ok := b.Best(side, true)
	return l.Price(), ok
}

// BestAsk returns the best ask price of side in dollars.
func (b *Book) BestAsk(side domain.PositionSide) (decimal.Decimal, bool) {
	l, ok := b.Best(side, false)
	return l.Price(), ok
}

// Spread is best ask minus best bid of side, if both exist.
func (b *Book) Spread(side domain.PositionSide) (decimal.Decimal, bool) {
	bid, okBid := b.BestBid(side)
	ask, okAsk := b.BestAsk(side)
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// DepthAt returns the quantity resting at exactly price (dollars).
func (b *Book) DepthAt(side domain.PositionSide, bid bool, price decimal.Decimal) int64 {
	for _, l := range *b.levels(side, bid) {
		if l.Price().Equal(price) {
			return l.Quantity
		}
	}
	return 0
}

// TotalDepth sums quantities walking the collection from its best level,
// stopping at the first bid below limit or ask above limit. An invalid limit
// sums the whole collection.
func (b *Book) TotalDepth(side domain.PositionSide, bid bool, limit decimal.NullDecimal) int64 {
	var total int64
	for _, l := range *b.levels(side, bid) {
		if limit.Valid {
			p := l.Price()
			if (bid && p.LessThan(limit.Decimal)) || (!bid && p.GreaterThan(limit.Decimal)) {
				break
			}
		}
		total += l.Quantity
	}
	return total
}

// Clone returns a deep copy of b.
func (b *Book) Clone() Book {
	return Book{
		Ticker:     b.Ticker,
		YesBids:    slices.Clone(b.YesBids),
		YesAsks:    slices.Clone(b.YesAsks),
		NoBids:     slices.Clone(b.NoBids),
		NoAsks:     slices.Clone(b.NoAsks),
		Sequence:   b.Sequence,
		LastUpdate: b.LastUpdate,
	}
}

// TopOfBook summarizes b for caching.
func (b *Book) TopOfBook() domain.TopOfBook {
	price := func(side domain.PositionSide, bid bool) string {
		if l, ok := b.Best(side, bid); ok {
			return l.Price().StringFixed(2)
		}
		return ""
	}
	return domain.TopOfBook{
		Ticker:     b.Ticker,
		YesBid:     price(domain.PositionYes, true),
		YesAsk:     price(domain.PositionYes, false),
		NoBid:      price(domain.PositionNo, true),
		NoAsk:      price(domain.PositionNo, false),
		Sequence:   b.Sequence,
		LastUpdate: b.LastUpdate,
	}
}
