// Package arbitrage prices arbitrage opportunities implied by market
// relationships and runs the selected strategies on live order books.
package arbitrage

import (
	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// Input is what a strategy sees on one evaluation pass.
type Input struct {
	Relationships []domain.Relationship
	Chains        [][]domain.Relationship
	Quotes        Quotes
}

// Strategy detects opportunities of one kind.
type Strategy interface {
	Name() string
	Detect(in Input) []domain.ArbitrageOpportunity
}

// SubsetStrategy prices Subset and Superset relationships.
type SubsetStrategy struct{ eval *Evaluator }

// NewSubsetStrategy returns a SubsetStrategy using eval.
func NewSubsetStrategy(eval *Evaluator) *SubsetStrategy { return &SubsetStrategy{eval: eval} }

func (s *SubsetStrategy) Name() string { return string(domain.StrategySubset) }

func (s *SubsetStrategy) Detect(in Input) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, r := range in.Relationships {
		if r.Kind == domain.RelationSubset || r.Kind == domain.RelationSuperset {
			out = append(out, s.eval.Evaluate(r, in.Quotes)...)
		}
	}
	return out
}

// DisjointStrategy prices Disjoint relationships.
type DisjointStrategy struct{ eval *Evaluator }

// NewDisjointStrategy returns a DisjointStrategy using eval.
func NewDisjointStrategy(eval *Evaluator) *DisjointStrategy { return &DisjointStrategy{eval: eval} }

func (s *DisjointStrategy) Name() string { return string(domain.StrategyDisjoint) }

func (s *DisjointStrategy) Detect(in Input) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, r := range in.Relationships {
		if r.Kind == domain.RelationDisjoint {
			out = append(out, s.eval.Evaluate(r, in.Quotes)...)
		}
	}
	return out
}

// ChainStrategy prices the end-to-end ordering of implication chains.
type ChainStrategy struct{ eval *Evaluator }

// NewChainStrategy returns a ChainStrategy using eval.
func NewChainStrategy(eval *Evaluator) *ChainStrategy { return &ChainStrategy{eval: eval} }

func (s *ChainStrategy) Name() string { return string(domain.StrategyChain) }

func (s *ChainStrategy) Detect(in Input) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, c := range in.Chains {
		if opp, ok := s.eval.Chain(c, in.Quotes); ok {
			out = append(out, opp)
		}
	}
	return out
}
