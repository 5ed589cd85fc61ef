package relation

import (
	"strings"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// AnalyzeFedRates finds relationships among Fed rate markets (series
// starting with KXFED), compared only within the same meeting date.
func AnalyzeFedRates(markets []domain.MarketDescriptor) []domain.Relationship {
	return analyzeGroups(markets, func(m domain.MarketDescriptor) (string, bool) {
		if !strings.HasPrefix(m.Series, "KXFED") || m.Date == "" {
			return "", false
		}
		return m.Date, true
	})
}

var indexSeries = map[string]bool{"INX": true, "NASDAQ100": true}

// AnalyzeIndexes finds relationships among S&P 500 and Nasdaq-100 markets,
// grouped by index and date.
func AnalyzeIndexes(markets []domain.MarketDescriptor) []domain.Relationship {
	return analyzeGroups(markets, func(m domain.MarketDescriptor) (string, bool) {
		if !indexSeries[m.Series] || m.Date == "" {
			return "", false
		}
		return m.Series + "|" + m.Date, true
	})
}

// analyzeGroups partitions markets by key, preserving first-seen group order,
// and runs a single fresh Engine over each group.
func analyzeGroups(markets []domain.MarketDescriptor, key func(domain.MarketDescriptor) (string, bool)) []domain.Relationship {
	groups := make(map[string][]domain.MarketDescriptor)
	var order []string
	for _, m := range markets {
		k, ok := key(m)
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}

	engine := NewEngine()
	var out []domain.Relationship
	for _, k := range order {
		out = append(out, engine.FindRelationships(groups[k])...)
	}
	return out
}
