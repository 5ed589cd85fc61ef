package arbitrage

import (
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/shopspring/decimal"
)

// Quote is the top of book of one market as seen by the evaluator. Sizes are
// the quantities resting at the quoted prices; zero means unknown.
type Quote struct {
	Ticker     string
	YesBid     decimal.NullDecimal
	YesAsk     decimal.NullDecimal
	NoBid      decimal.NullDecimal
	NoAsk      decimal.NullDecimal
	YesBidSize int64
	YesAskSize int64
	NoBidSize  int64
	NoAskSize  int64
}

// Quotes indexes quotes by ticker.
type Quotes map[string]Quote

func price(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// QuoteFromBook reads the best levels of b.
func QuoteFromBook(b *orderbook.Book) Quote {
	q := Quote{Ticker: b.Ticker}
	top := func(side domain.PositionSide, bid bool) (decimal.NullDecimal, int64) {
		l, ok := b.Best(side, bid)
		if !ok {
			return decimal.NullDecimal{}, 0
		}
		p := price(l.Price())
		return p, b.TotalDepth(side, bid, p)
	}
	q.YesBid, q.YesBidSize = top(domain.PositionYes, true)
	q.YesAsk, q.YesAskSize = top(domain.PositionYes, false)
	q.NoBid, q.NoBidSize = top(domain.PositionNo, true)
	q.NoAsk, q.NoAskSize = top(domain.PositionNo, false)
	return q
}

var (
	consistencyLow  = decimal.RequireFromString("0.99")
	consistencyHigh = decimal.RequireFromString("1.01")
)

// Consistent reports whether the yes and no sides of a complete quote agree
// to within a cent: yes bid + no ask >= 0.99 and yes ask + no bid <= 1.01.
// Incomplete quotes are treated as consistent.
func (q Quote) Consistent() bool {
	if q.YesBid.Valid && q.NoAsk.Valid && q.YesBid.Decimal.Add(q.NoAsk.Decimal).LessThan(consistencyLow) {
		return false
	}
	if q.YesAsk.Valid && q.NoBid.Valid && q.YesAsk.Decimal.Add(q.NoBid.Decimal).GreaterThan(consistencyHigh) {
		return false
	}
	return true
}
