package arbitrage

import (
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/fees"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultSize is the trade size used when book depth is not checked.
const DefaultSize = 100

var dollar = decimal.NewFromInt(1)

// Params tunes the evaluator.
type Params struct {
	// MinProfit is the smallest net profit, in dollars, worth reporting.
	MinProfit decimal.Decimal
	// MaxSize caps the contracts per opportunity. Zero means DefaultSize.
	MaxSize int64
	// CheckDepth sizes trades by the quantity resting at the quoted prices.
	CheckDepth bool
	// TTL sets ExpiresAt on produced opportunities when positive.
	TTL time.Duration
}

// Evaluator turns relationships and quotes into fee-net opportunities.
type Evaluator struct {
	fees   *fees.Calculator
	params Params
	now    func() time.Time
	newID  func() string
}

// NewEvaluator returns an Evaluator charging fees with calc.
func NewEvaluator(calc *fees.Calculator, params Params) *Evaluator {
	if params.MaxSize <= 0 {
		params.MaxSize = DefaultSize
	}
	return &Evaluator{
		fees:   calc,
		params: params,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewRandom()).String() },
	}
}

// Params returns the evaluator's parameters.
func (e *Evaluator) Params() Params { return e.params }

// Evaluate dispatches on the relationship kind. Superset relationships are
// evaluated as the Subset they imply with the markets swapped.
func (e *Evaluator) Evaluate(rel domain.Relationship, quotes Quotes) []domain.ArbitrageOpportunity {
	switch rel.Kind {
	case domain.RelationSubset, domain.RelationSuperset:
		inner, outer := implication(rel)
		qa, okA := quotes[inner]
		qb, okB := quotes[outer]
		if !okA || !okB {
			return nil
		}
		if opp, ok := e.Subset(qa, qb, rel.Confidence); ok {
			return []domain.ArbitrageOpportunity{opp}
		}
	case domain.RelationDisjoint:
		qa, okA := quotes[rel.A.Ticker]
		qb, okB := quotes[rel.B.Ticker]
		if !okA || !okB {
			return nil
		}
		return e.Disjoint(qa, qb, rel.Confidence)
	}
	return nil
}

// implication returns the (implying, implied) tickers of a Subset or
// Superset relationship.
func implication(rel domain.Relationship) (string, string) {
	if rel.Kind == domain.RelationSuperset {
		return rel.B.Ticker, rel.A.Ticker
	}
	return rel.A.Ticker, rel.B.Ticker
}

// Subset prices the arbitrage for A ⊆ B, where P(A) <= P(B) must hold. The
// yes side sells A yes at its bid and buys B yes at its ask; the no side buys
// B no at its ask and sells A no at its bid. The more profitable qualifying
// side is returned.
func (e *Evaluator) Subset(a, b Quote, confidence float64) (domain.ArbitrageOpportunity, bool) {
	return e.subset(domain.StrategySubset, []string{a.Ticker, b.Ticker}, a, b, confidence)
}

func (e *Evaluator) subset(strategy domain.StrategyType, markets []string, a, b Quote, confidence float64) (domain.ArbitrageOpportunity, bool) {
	var best *domain.ArbitrageOpportunity

	if valid(a.YesAsk, b.YesBid, a.YesBid, b.YesAsk) && a.YesAsk.Decimal.GreaterThan(b.YesBid.Decimal) {
		edge := a.YesBid.Decimal.Sub(b.YesAsk.Decimal)
		if edge.IsPositive() {
			size := e.size(a.YesBidSize, b.YesAskSize)
			legs := []domain.TradeLeg{
				leg(a.Ticker, domain.SideSell, domain.PositionYes, a.YesBid.Decimal, size),
				leg(b.Ticker, domain.SideBuy, domain.PositionYes, b.YesAsk.Decimal, size),
			}
			capital := b.YesAsk.Decimal.Mul(decimal.NewFromInt(size))
			if opp, ok := e.build(strategy, markets, legs, edge, size, capital, confidence); ok {
				best = &opp
			}
		}
	}

	if valid(b.NoAsk, a.NoBid) && b.NoAsk.Decimal.LessThan(a.NoBid.Decimal) {
		edge := a.NoBid.Decimal.Sub(b.NoAsk.Decimal)
		size := e.size(b.NoAskSize, a.NoBidSize)
		legs := []domain.TradeLeg{
			leg(b.Ticker, domain.SideBuy, domain.PositionNo, b.NoAsk.Decimal, size),
			leg(a.Ticker, domain.SideSell, domain.PositionNo, a.NoBid.Decimal, size),
		}
		capital := b.NoAsk.Decimal.Mul(decimal.NewFromInt(size))
		if opp, ok := e.build(strategy, markets, legs, edge, size, capital, confidence); ok {
			if best == nil || opp.NetProfit.GreaterThan(best.NetProfit) {
				best = &opp
			}
		}
	}

	if best == nil {
		return domain.ArbitrageOpportunity{}, false
	}
	return *best, true
}

// Disjoint prices the arbitrage for markets that cannot both resolve yes.
// Selling both yes bids above $1 needs no capital; buying both no asks below
// $1 costs their sum. Each check stands alone.
func (e *Evaluator) Disjoint(a, b Quote, confidence float64) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	markets := []string{a.Ticker, b.Ticker}

	if valid(a.YesBid, b.YesBid) {
		sum := a.YesBid.Decimal.Add(b.YesBid.Decimal)
		if sum.GreaterThan(dollar) {
			size := e.size(a.YesBidSize, b.YesBidSize)
			legs := []domain.TradeLeg{
				leg(a.Ticker, domain.SideSell, domain.PositionYes, a.YesBid.Decimal, size),
				leg(b.Ticker, domain.SideSell, domain.PositionYes, b.YesBid.Decimal, size),
			}
			if opp, ok := e.build(domain.StrategyDisjoint, markets, legs, sum.Sub(dollar), size, decimal.Zero, confidence); ok {
				out = append(out, opp)
			}
		}
	}

	if valid(a.NoAsk, b.NoAsk) {
		sum := a.NoAsk.Decimal.Add(b.NoAsk.Decimal)
		if sum.LessThan(dollar) {
			size := e.size(a.NoAskSize, b.NoAskSize)
			legs := []domain.TradeLeg{
				leg(a.Ticker, domain.SideBuy, domain.PositionNo, a.NoAsk.Decimal, size),
				leg(b.Ticker, domain.SideBuy, domain.PositionNo, b.NoAsk.Decimal, size),
			}
			capital := sum.Mul(decimal.NewFromInt(size))
			if opp, ok := e.build(domain.StrategyDisjoint, markets, legs, dollar.Sub(sum), size, capital, confidence); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

// Chain tests the ordering implied end to end by a chain of implications:
// the first market's probability may not exceed the last's. It is priced as
// a Subset between those two markets and lists every market on the path.
func (e *Evaluator) Chain(chain []domain.Relationship, quotes Quotes) (domain.ArbitrageOpportunity, bool) {
	if len(chain) < 2 {
		return domain.ArbitrageOpportunity{}, false
	}
	markets := chainTickers(chain)
	confidence := 1.0
	for _, r := range chain {
		confidence = min(confidence, r.Confidence)
	}
	qa, okA := quotes[markets[0]]
	qb, okB := quotes[markets[len(markets)-1]]
	if !okA || !okB {
		return domain.ArbitrageOpportunity{}, false
	}
	return e.subset(domain.StrategyChain, markets, qa, qb, confidence)
}

// size is MaxSize, or with CheckDepth the smallest of MaxSize and the given
// depths.
func (e *Evaluator) size(depths ...int64) int64 {
	size := e.params.MaxSize
	if !e.params.CheckDepth {
		return min(size, DefaultSize)
	}
	for _, d := range depths {
		size = min(size, d)
	}
	return size
}

func (e *Evaluator) build(strategy domain.StrategyType, markets []string, legs []domain.TradeLeg, edge decimal.Decimal, size int64, capital decimal.Decimal, confidence float64) (domain.ArbitrageOpportunity, bool) {
	if size <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}
	gross := edge.Mul(decimal.NewFromInt(size))
	totalFees := e.fees.Total(legs)
	net := gross.Sub(totalFees)
	if net.LessThan(e.params.MinProfit) {
		return domain.ArbitrageOpportunity{}, false
	}

	now := e.now()
	opp := domain.ArbitrageOpportunity{
		ID:              e.newID(),
		Strategy:        strategy,
		Markets:         append([]string(nil), markets...),
		Legs:            legs,
		Size:            size,
		GrossProfit:     gross,
		TotalFees:       totalFees,
		NetProfit:       net,
		RequiredCapital: capital,
		Confidence:      confidence,
		DetectedAt:      now,
	}
	if e.params.TTL > 0 {
		exp := now.Add(e.params.TTL)
		opp.ExpiresAt = &exp
	}
	return opp, true
}

func leg(ticker string, side domain.OrderSide, pos domain.PositionSide, price decimal.Decimal, qty int64) domain.TradeLeg {
	return domain.TradeLeg{Ticker: ticker, Side: side, Position: pos, Price: price, Quantity: qty}
}

func valid(prices ...decimal.NullDecimal) bool {
	for _, p := range prices {
		if !p.Valid {
			return false
		}
	}
	return true
}
