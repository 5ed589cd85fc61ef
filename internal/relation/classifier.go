// Package relation classifies logical relationships between markets from
// their ticker structure and finds transitive chains of implications.
package relation

import (
	"fmt"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// Classify returns the relationship between a and b, or false when the two
// markets are not comparable: different series, date or threshold kind, a
// missing value, or a kind this classifier does not reason about.
func Classify(a, b domain.MarketDescriptor) (domain.Relationship, bool) {
	if a.Series != b.Series || a.Date != b.Date || a.Kind != b.Kind {
		return domain.Relationship{}, false
	}
	if !a.HasThreshold() || !b.HasThreshold() {
		return domain.Relationship{}, false
	}

	va, vb := a.Value.Decimal, b.Value.Decimal
	rel := domain.Relationship{A: a, B: b, Confidence: 1.0}

	switch a.Kind {
	case domain.ThresholdAbove:
		switch va.Cmp(vb) {
		case 1:
			rel.Kind = domain.RelationSubset
			rel.Reasoning = fmt.Sprintf("If value > %s, then value > %s (subset)", va, vb)
		case -1:
			rel.Kind = domain.RelationSuperset
			rel.Reasoning = fmt.Sprintf("If value > %s, then value > %s (superset)", vb, va)
		default:
			rel.Kind = domain.RelationIdentical
			rel.Reasoning = fmt.Sprintf("Both markets have same threshold: above %s", va)
		}
	case domain.ThresholdBelow:
		switch va.Cmp(vb) {
		case -1:
			rel.Kind = domain.RelationSubset
			rel.Reasoning = fmt.Sprintf("If value < %s, then value < %s (subset)", va, vb)
		case 1:
			rel.Kind = domain.RelationSuperset
			rel.Reasoning = fmt.Sprintf("If value < %s, then value < %s (superset)", vb, va)
		default:
			rel.Kind = domain.RelationIdentical
			rel.Reasoning = fmt.Sprintf("Both markets have same threshold: below %s", va)
		}
	case domain.ThresholdExactly:
		if va.Equal(vb) {
			rel.Kind = domain.RelationIdentical
			rel.Reasoning = fmt.Sprintf("Both markets are for exactly %s", va)
		} else {
			rel.Kind = domain.RelationDisjoint
			rel.Reasoning = fmt.Sprintf("Cannot be both exactly %s and exactly %s (disjoint)", va, vb)
		}
	default:
		return domain.Relationship{}, false
	}
	return rel, true
}
