package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a trade leg.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// PositionSide is the contract side a leg trades.
type PositionSide string

const (
	PositionYes PositionSide = "yes"
	PositionNo  PositionSide = "no"
)

// TradeLeg is the atomic unit fees are computed over. Price is in dollars at
// cent granularity (0 < Price < 1).
type TradeLeg struct {
	Ticker   string          `json:"ticker"`
	Side     OrderSide       `json:"side"`
	Position PositionSide    `json:"position"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Maker    bool            `json:"maker"`
}

// StrategyType names the rule that produced an opportunity.
type StrategyType string

const (
	StrategySubset   StrategyType = "subset"
	StrategyDisjoint StrategyType = "disjoint"
	StrategyChain    StrategyType = "chain"
)

// ArbitrageOpportunity is a priced, sized, fee-net trade set. NetProfit always
// equals GrossProfit minus TotalFees.
type ArbitrageOpportunity struct {
	ID              string
	Strategy        StrategyType
	Markets         []string
	Legs            []TradeLeg
	Size            int64
	GrossProfit     decimal.Decimal
	TotalFees       decimal.Decimal
	NetProfit       decimal.Decimal
	RequiredCapital decimal.Decimal
	Confidence      float64
	DetectedAt      time.Time
	ExpiresAt       *time.Time
}

// ReturnOnCapital is NetProfit / RequiredCapital. infinite is true when no
// capital is committed, in which case roc is zero and must be ignored.
func (o ArbitrageOpportunity) ReturnOnCapital() (roc decimal.Decimal, infinite bool) {
	if !o.RequiredCapital.IsPositive() {
		return decimal.Zero, true
	}
	return o.NetProfit.DivRound(o.RequiredCapital, 6), false
}

// IsExpired reports whether the opportunity's expiry lies before now.
func (o ArbitrageOpportunity) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// Fingerprint identifies the trade set regardless of when it was detected, so
// repeated detections of the same mispricing can be collapsed.
func (o ArbitrageOpportunity) Fingerprint() string {
	s := string(o.Strategy)
	for _, l := range o.Legs {
		s += fmt.Sprintf("|%s:%s:%s:%s:%d", l.Ticker, l.Side, l.Position, l.Price.StringFixed(2), l.Quantity)
	}
	return s
}

// OrderEntry is one (ticker, side, position, price, qty) tuple of an
// opportunity record. It serializes as a JSON array.
type OrderEntry struct {
	Ticker   string
	Side     OrderSide
	Position PositionSide
	Price    string
	Quantity int64
}

func (e OrderEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Ticker, e.Side, e.Position, e.Price, e.Quantity})
}

func (e *OrderEntry) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 5 {
		return fmt.Errorf("order entry: want 5 elements, got %d", len(raw))
	}
	targets := []any{&e.Ticker, &e.Side, &e.Position, &e.Price, &e.Quantity}
	for i, t := range targets {
		if err := json.Unmarshal(raw[i], t); err != nil {
			return fmt.Errorf("order entry element %d: %w", i, err)
		}
	}
	return nil
}

// OpportunityRecord is the wire form of an opportunity for persistence and
// transmission. Money is carried as exact decimal strings.
type OpportunityRecord struct {
	OpportunityID   string       `json:"opportunity_id"`
	StrategyType    StrategyType `json:"strategy_type"`
	Markets         []string     `json:"markets"`
	Orders          []OrderEntry `json:"orders"`
	ExpectedProfit  string       `json:"expected_profit"`
	RequiredCapital string       `json:"required_capital"`
	ConfidenceScore float64      `json:"confidence_score"`
	DetectedAt      string       `json:"detected_at"`
	ExpiresAt       *string      `json:"expires_at"`
}

// Record builds the wire form of o.
func (o ArbitrageOpportunity) Record() OpportunityRecord {
	orders := make([]OrderEntry, len(o.Legs))
	for i, l := range o.Legs {
		orders[i] = OrderEntry{
			Ticker:   l.Ticker,
			Side:     l.Side,
			Position: l.Position,
			Price:    l.Price.StringFixed(2),
			Quantity: l.Quantity,
		}
	}
	rec := OpportunityRecord{
		OpportunityID:   o.ID,
		StrategyType:    o.Strategy,
		Markets:         o.Markets,
		Orders:          orders,
		ExpectedProfit:  o.NetProfit.StringFixed(2),
		RequiredCapital: o.RequiredCapital.StringFixed(2),
		ConfidenceScore: o.Confidence,
		DetectedAt:      o.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.ExpiresAt != nil {
		s := o.ExpiresAt.UTC().Format(time.RFC3339Nano)
		rec.ExpiresAt = &s
	}
	if rec.Markets == nil {
		rec.Markets = []string{}
	}
	return rec
}
