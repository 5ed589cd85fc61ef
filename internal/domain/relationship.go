package domain

import "time"

// RelationshipKind describes how the outcomes of two markets constrain each
// other's prices.
type RelationshipKind string

const (
	RelationSubset      RelationshipKind = "subset"      // A yes implies B yes
	RelationSuperset    RelationshipKind = "superset"    // B yes implies A yes
	RelationDisjoint    RelationshipKind = "disjoint"    // A and B cannot both resolve yes
	RelationComplement  RelationshipKind = "complement"  // exactly one of A and B resolves yes
	RelationOverlapping RelationshipKind = "overlapping" // outcomes share some states
	RelationIdentical   RelationshipKind = "identical"   // same outcome set
)

// Relationship is a classified pair of markets. It is never mutated after
// creation.
type Relationship struct {
	A          MarketDescriptor
	B          MarketDescriptor
	Kind       RelationshipKind
	Confidence float64 // 0.0–1.0
	Reasoning  string
}

// PairKey returns the tickers of the pair in a stable order so that (A,B) and
// (B,A) share a key.
func PairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Key is the unordered pair key of the relationship.
func (r Relationship) Key() [2]string {
	return PairKey(r.A.Ticker, r.B.Ticker)
}

// ArbitrageDirection returns the price constraint the relationship imposes and
// the trade that exploits a violation. ok is false for kinds without a
// tradable constraint.
func (r Relationship) ArbitrageDirection() (constraint, action string, ok bool) {
	switch r.Kind {
	case RelationSubset:
		return "P(A) <= P(B)", "Sell A YES, Buy B YES if A_YES > B_YES", true
	case RelationSuperset:
		return "P(A) >= P(B)", "Sell B YES, Buy A YES if B_YES > A_YES", true
	case RelationDisjoint:
		return "P(A) + P(B) <= 1", "Sell both YES if sum > 1", true
	case RelationComplement:
		return "P(A) = 1 - P(B)", "Buy A YES, Buy B NO if A_YES + B_YES < 1", true
	default:
		return "", "", false
	}
}

// RelationshipRecord is the persisted form of a discovered relationship.
type RelationshipRecord struct {
	TickerA      string           `json:"ticker_a"`
	TickerB      string           `json:"ticker_b"`
	Kind         RelationshipKind `json:"relationship_type"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
	DiscoveredAt time.Time        `json:"discovered_at"`
}

// Record converts r for persistence.
func (r Relationship) Record(at time.Time) RelationshipRecord {
	return RelationshipRecord{
		TickerA:      r.A.Ticker,
		TickerB:      r.B.Ticker,
		Kind:         r.Kind,
		Confidence:   r.Confidence,
		Reasoning:    r.Reasoning,
		DiscoveredAt: at,
	}
}
