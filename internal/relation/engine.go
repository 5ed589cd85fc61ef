package relation

import (
	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// MinConfidence is the confidence a relationship must exceed to be reported.
const MinConfidence = 0.7

// DefaultMaxChainLength bounds chain traversal when callers have no opinion.
const DefaultMaxChainLength = 3

// Engine finds relationships and chains over a set of markets. It caches
// classified pairs for its lifetime and is not safe for concurrent use.
type Engine struct {
	cache    map[[2]string]domain.Relationship
	classify func(a, b domain.MarketDescriptor) (domain.Relationship, bool)
}

// NewEngine returns an Engine with an empty cache.
func NewEngine() *Engine {
	return &Engine{
		cache:    make(map[[2]string]domain.Relationship),
		classify: Classify,
	}
}

// CacheSize is the number of cached pair verdicts.
func (e *Engine) CacheSize() int { return len(e.cache) }

// FindRelationships classifies every unordered pair of distinct markets and
// returns those with confidence above MinConfidence, in pair order.
func (e *Engine) FindRelationships(markets []domain.MarketDescriptor) []domain.Relationship {
	var out []domain.Relationship
	for i := range markets {
		for j := i + 1; j < len(markets); j++ {
			a, b := markets[i], markets[j]
			if a.Ticker == b.Ticker {
				continue
			}
			key := domain.PairKey(a.Ticker, b.Ticker)
			rel, ok := e.cache[key]
			if !ok {
				rel, ok = e.classify(a, b)
				if !ok {
					continue
				}
				e.cache[key] = rel
			}
			if rel.Confidence > MinConfidence {
				out = append(out, rel)
			}
		}
	}
	return out
}

type edge struct {
	to  string
	rel domain.Relationship
}

// FindChains returns every path of 2 to maxLen implication edges through the
// relationships among markets. An edge A→B exists for each Subset(A,B) and for
// each Superset(B,A). Paths never revisit a market, so cycles terminate.
func (e *Engine) FindChains(markets []domain.MarketDescriptor, maxLen int) [][]domain.Relationship {
	rels := e.FindRelationships(markets)

	graph := make(map[string][]edge)
	var nodes []string
	addNode := func(t string) {
		if _, ok := graph[t]; !ok {
			graph[t] = nil
			nodes = append(nodes, t)
		}
	}
	for _, r := range rels {
		var from, to string
		switch r.Kind {
		case domain.RelationSubset:
			from, to = r.A.Ticker, r.B.Ticker
		case domain.RelationSuperset:
			from, to = r.B.Ticker, r.A.Ticker
		default:
			continue
		}
		addNode(r.A.Ticker)
		addNode(r.B.Ticker)
		graph[from] = append(graph[from], edge{to: to, rel: r})
	}

	var chains [][]domain.Relationship
	for _, start := range nodes {
		walk(graph, start, nil, map[string]bool{start: true}, maxLen, &chains)
	}
	return chains
}

// walk extends path from node. path and visited are owned by the caller and
// copied before being extended, so sibling branches never share storage.
func walk(graph map[string][]edge, node string, path []domain.Relationship, visited map[string]bool, maxLen int, chains *[][]domain.Relationship) {
	if len(path) >= 2 {
		*chains = append(*chains, path)
	}
	if len(path) >= maxLen {
		return
	}
	for _, next := range graph[node] {
		if visited[next.to] {
			continue
		}
		nextPath := make([]domain.Relationship, len(path), len(path)+1)
		copy(nextPath, path)
		nextPath = append(nextPath, next.rel)

		nextVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			nextVisited[k] = true
		}
		nextVisited[next.to] = true

		walk(graph, next.to, nextPath, nextVisited, maxLen, chains)
	}
}
