package fees

import (
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/ticker"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Calculator applies a Schedule to trade legs. It holds no mutable state and
// is safe for concurrent use.
type Calculator struct {
	schedule Schedule
}

// NewCalculator returns a Calculator for schedule.
func NewCalculator(schedule Schedule) *Calculator {
	return &Calculator{schedule: schedule}
}

// Schedule returns the schedule the calculator was built with.
func (c *Calculator) Schedule() Schedule { return c.schedule }

// TradingFee is the fee for contracts at price (dollars) on ticker.
//
// Maker orders pay the per-contract maker fee in maker-fee series and nothing
// elsewhere. Taker orders pay rate × C × P × (1 − P), rounded up to the cent.
func (c *Calculator) TradingFee(price decimal.Decimal, contracts int64, tk string, maker bool) decimal.Decimal {
	if maker {
		if c.schedule.HasMakerFees(ticker.Series(tk)) {
			return CeilToCent(c.schedule.MakerFeePerContract.Mul(decimal.NewFromInt(contracts)))
		}
		return decimal.Zero
	}
	fee := c.schedule.Rate(tk).
		Mul(decimal.NewFromInt(contracts)).
		Mul(price).
		Mul(one.Sub(price))
	return CeilToCent(fee)
}

// Fee is the fee for a single leg.
func (c *Calculator) Fee(leg domain.TradeLeg) decimal.Decimal {
	return c.TradingFee(leg.Price, leg.Quantity, leg.Ticker, leg.Maker)
}

// Total is the exact sum of the per-leg fees.
func (c *Calculator) Total(legs []domain.TradeLeg) decimal.Decimal {
	total := decimal.Zero
	for _, l := range legs {
		total = total.Add(c.Fee(l))
	}
	return total
}

// MakerRebate sums, over maker fills of the given contract counts, the
// difference between the rounded and the unrounded maker fee. The rebate is
// only paid when that sum strictly exceeds the threshold.
func (c *Calculator) MakerRebate(fills []int64) decimal.Decimal {
	total := decimal.Zero
	for _, n := range fills {
		theoretical := c.schedule.MakerFeePerContract.Mul(decimal.NewFromInt(n))
		total = total.Add(CeilToCent(theoretical).Sub(theoretical))
	}
	if total.GreaterThan(c.schedule.RebateThreshold) {
		return total
	}
	return decimal.Zero
}

// MakerFill is one resting-order execution.
type MakerFill struct {
	Contracts int64
	FilledAt  time.Time
}

// MonthlyMakerRebates groups fills by calendar month (UTC, "2006-01") and
// returns the rebate owed for each month that has fills.
func (c *Calculator) MonthlyMakerRebates(fills []MakerFill) map[string]decimal.Decimal {
	byMonth := make(map[string][]int64)
	for _, f := range fills {
		m := f.FilledAt.UTC().Format("2006-01")
		byMonth[m] = append(byMonth[m], f.Contracts)
	}
	out := make(map[string]decimal.Decimal, len(byMonth))
	for m, counts := range byMonth {
		out[m] = c.MakerRebate(counts)
	}
	return out
}
